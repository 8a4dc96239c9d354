package domain

import "time"

// RoleOperator is the JWT role required for the admin surface.
const RoleOperator = "operator"

// OperatorSession is a signed-in operator. Disabled sessions fail the
// operator session check even while their JWT is unexpired.
type OperatorSession struct {
	SessionID string    `json:"id" dynamodbav:"session_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	Name      string    `json:"name" dynamodbav:"name"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
