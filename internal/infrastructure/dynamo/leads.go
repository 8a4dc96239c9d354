package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/domain"
)

// LeadRepo is the append-only lead ledger. PK: lead_id.
type LeadRepo struct {
	client          *dynamodb.Client
	tableName       string
	challengesTable string
	statsTable      string
}

func NewLeadRepo(client *dynamodb.Client, tables config.DynamoTables) *LeadRepo {
	return &LeadRepo{
		client:          client,
		tableName:       tables.Leads,
		challengesTable: tables.Challenges,
		statsTable:      tables.Stats,
	}
}

// Record redeems the token, writes the lead and bumps leads_total in one
// transaction. A token that is unknown, used, expired or bound to another
// subject cancels the whole write with domain.ErrUnverified.
func (r *LeadRepo) Record(ctx context.Context, rd domain.Redemption, l *domain.Lead) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.challengesTable),
				Key:                 strKey(fieldSubject, rd.Subject),
				UpdateExpression:    aws.String("SET #used = :true, #ver = #ver + :one"),
				ConditionExpression: aws.String("#st = :verified AND #th = :th AND #used = :false AND #exp >= :now"),
				ExpressionAttributeNames: map[string]string{
					"#st":   fieldState,
					"#th":   fieldTokenHash,
					"#used": fieldTokenUsed,
					"#exp":  fieldTokenExpiry,
					"#ver":  fieldVersion,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":verified": strVal(string(domain.ChallengeVerified)),
					":th":       strVal(rd.TokenHash),
					":true":     &types.AttributeValueMemberBOOL{Value: true},
					":false":    &types.AttributeValueMemberBOOL{Value: false},
					":now":      numVal(rd.At.Unix()),
					":one":      numVal(1),
				},
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(lead_id)"),
			}},
			{Update: &types.Update{
				TableName:                 aws.String(r.statsTable),
				Key:                       strKey(fieldStatID, globalStatsID),
				UpdateExpression:          aws.String("ADD #lt :one, #sv :one"),
				ExpressionAttributeNames:  map[string]string{"#lt": fieldLeadsTotal, "#sv": fieldVersion},
				ExpressionAttributeValues: map[string]types.AttributeValue{":one": numVal(1)},
			}},
		},
	})
	if conditionFailed(err) {
		return fmt.Errorf("token not redeemable: %w", domain.ErrUnverified)
	}
	return err
}

// List returns up to limit leads, newest first. limit <= 0 returns all.
func (r *LeadRepo) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	var leads []domain.Lead
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.Lead
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal leads: %w", err)
		}
		leads = append(leads, page...)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].CreatedAt.After(leads[j].CreatedAt) })
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

// count returns the number of stored leads.
func (r *LeadRepo) count(ctx context.Context) (int64, error) {
	var n int64
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Select:    types.SelectCount,
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		n += int64(out.Count)
	}
	return n, nil
}
