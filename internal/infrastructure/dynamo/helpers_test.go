package dynamo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/guestlist-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"enable": false})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "enable"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"updated_at": "2026-03-01T12:00:00Z",
		"enable":     false,
		"name":       "Ada",
	}
	// Call twice to verify determinism.
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)

	// Keys must be sorted: enable < name < updated_at
	assert.Equal(t, "enable", ue1.Names["#f0"])
	assert.Equal(t, "name", ue1.Names["#f1"])
	assert.Equal(t, "updated_at", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"enable": true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestConditionFailed(t *testing.T) {
	assert.True(t, conditionFailed(&types.ConditionalCheckFailedException{}))
	assert.True(t, conditionFailed(fmt.Errorf("wrapped: %w", &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	})))
	assert.False(t, conditionFailed(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("TransactionConflict")}},
	}))
	assert.False(t, conditionFailed(errors.New("boom")))
	assert.False(t, conditionFailed(nil))
}

func TestStatsItem_FloorsNegativeCounters(t *testing.T) {
	s := statsItem{EventsTotal: 2, EventsNew: -1, EventsImported: 2, LeadsTotal: 3}.toDomain()
	assert.Equal(t, int64(0), s.Events.New)
	assert.Equal(t, int64(2), s.Events.Imported)
	assert.Equal(t, int64(3), s.Leads.Total)

	back := statsItemFrom(s, 7)
	assert.Equal(t, globalStatsID, back.StatID)
	assert.Equal(t, int64(2), back.EventsTotal)
	assert.Equal(t, int64(7), back.Version)
}

func TestRecountPut_GuardsOnSeenVersion(t *testing.T) {
	s := domain.Stats{Events: domain.EventStats{Total: 2, New: 2}, Leads: domain.LeadStats{Total: 1}}

	in, err := recountPut("stats", s, 4)
	require.NoError(t, err)
	assert.Equal(t, "#sv = :sv", aws.ToString(in.ConditionExpression))
	assert.Equal(t, fieldVersion, in.ExpressionAttributeNames["#sv"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, in.ExpressionAttributeValues[":sv"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "5"}, in.Item[fieldVersion], "the overwrite bumps the version")
	assert.Equal(t, &types.AttributeValueMemberN{Value: "2"}, in.Item[fieldEventsNew])
}

func TestRecountPut_UnversionedItem(t *testing.T) {
	in, err := recountPut("stats", domain.Stats{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "attribute_not_exists(#sv)", aws.ToString(in.ConditionExpression))
	assert.Empty(t, in.ExpressionAttributeValues)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, in.Item[fieldVersion])
}

func TestChallengeMarshal_TokenExpiryIsUnixSeconds(t *testing.T) {
	c := &domain.Challenge{Subject: "a@b.com", TokenExpiresAt: time.Unix(1767225600, 0).UTC()}
	item, err := attributevalue.MarshalMap(c)
	require.NoError(t, err)
	n, ok := item[fieldTokenExpiry].(*types.AttributeValueMemberN)
	require.True(t, ok, "token expiry must be numeric for the redemption condition")
	assert.Equal(t, "1767225600", n.Value)
}
