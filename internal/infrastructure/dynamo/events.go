package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/domain"
)

// EventRepo stores catalog items (PK: event_id) and keeps the aggregate
// counters item (stats table, stat_id = "global") in step with them.
type EventRepo struct {
	client     *dynamodb.Client
	tableName  string
	statsTable string
	leads      *LeadRepo
}

func NewEventRepo(client *dynamodb.Client, tables config.DynamoTables) *EventRepo {
	return &EventRepo{
		client:     client,
		tableName:  tables.Events,
		statsTable: tables.Stats,
		leads:      NewLeadRepo(client, tables),
	}
}

// reconcileRetries bounds how often a recount is redone after a counter
// update lands during its scan.
const reconcileRetries = 3

// statsItem is the flat on-disk shape of domain.Stats. Version is bumped by
// every counter update so a recount can detect one landing under it.
type statsItem struct {
	StatID         string `dynamodbav:"stat_id"`
	EventsTotal    int64  `dynamodbav:"events_total"`
	EventsNew      int64  `dynamodbav:"events_new"`
	EventsUpdated  int64  `dynamodbav:"events_updated"`
	EventsImported int64  `dynamodbav:"events_imported"`
	LeadsTotal     int64  `dynamodbav:"leads_total"`
	Version        int64  `dynamodbav:"version"`
}

func (s statsItem) toDomain() domain.Stats {
	// Apply floors every counter at zero.
	return domain.Stats{}.Apply(domain.StatsDelta{
		Total:    s.EventsTotal,
		New:      s.EventsNew,
		Updated:  s.EventsUpdated,
		Imported: s.EventsImported,
		Leads:    s.LeadsTotal,
	})
}

func statsItemFrom(s domain.Stats, version int64) statsItem {
	return statsItem{
		Version:        version,
		StatID:         globalStatsID,
		EventsTotal:    s.Events.Total,
		EventsNew:      s.Events.New,
		EventsUpdated:  s.Events.Updated,
		EventsImported: s.Events.Imported,
		LeadsTotal:     s.Leads.Total,
	}
}

func (r *EventRepo) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEventID, eventID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	var e domain.Event
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}

// Transition writes next and the counter delta in one transaction, guarded
// on prev's status and content hash (or on absence when prev is nil).
func (r *EventRepo) Transition(ctx context.Context, prev, next *domain.Event) error {
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	put := &types.Put{TableName: aws.String(r.tableName), Item: item}
	var prevStatus domain.EventStatus
	if prev == nil {
		put.ConditionExpression = aws.String("attribute_not_exists(#id)")
		put.ExpressionAttributeNames = map[string]string{"#id": fieldEventID}
	} else {
		prevStatus = prev.Status
		put.ConditionExpression = aws.String("#st = :ps AND #ch = :ph")
		put.ExpressionAttributeNames = map[string]string{"#st": fieldStatus, "#ch": fieldContentHash}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ps": strVal(string(prev.Status)),
			":ph": strVal(prev.ContentHash),
		}
	}

	items := []types.TransactWriteItem{{Put: put}}
	if d := domain.TransitionDelta(prevStatus, next.Status); !d.IsZero() {
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:        aws.String(r.statsTable),
			Key:              strKey(fieldStatID, globalStatsID),
			UpdateExpression: aws.String("ADD #t :t, #n :n, #u :u, #i :i, #sv :one"),
			ExpressionAttributeNames: map[string]string{
				"#t":  fieldEventsTotal,
				"#n":  fieldEventsNew,
				"#u":  fieldEventsUpdated,
				"#i":  fieldEventsImported,
				"#sv": fieldVersion,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t":   numVal(d.Total),
				":n":   numVal(d.New),
				":u":   numVal(d.Updated),
				":i":   numVal(d.Imported),
				":one": numVal(1),
			},
		}})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if conditionFailed(err) {
		return fmt.Errorf("event %s changed: %w", next.EventID, domain.ErrConflict)
	}
	return err
}

// List scans the catalog, optionally filtered by status, most recently
// discovered first. limit <= 0 returns all.
func (r *EventRepo) List(ctx context.Context, status domain.EventStatus, limit int) ([]domain.Event, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
	if status != "" {
		input.FilterExpression = aws.String("#st = :st")
		input.ExpressionAttributeNames = map[string]string{"#st": fieldStatus}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":st": strVal(string(status))}
	}
	events, err := r.scan(ctx, input)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].DiscoveredAt.Equal(events[j].DiscoveredAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].DiscoveredAt.After(events[j].DiscoveredAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *EventRepo) scan(ctx context.Context, input *dynamodb.ScanInput) ([]domain.Event, error) {
	var events []domain.Event
	p := dynamodb.NewScanPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.Event
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
		events = append(events, page...)
	}
	return events, nil
}

func (r *EventRepo) Stats(ctx context.Context) (domain.Stats, error) {
	item, err := r.loadStats(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return item.toDomain(), nil
}

func (r *EventRepo) loadStats(ctx context.Context) (statsItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.statsTable),
		Key:            strKey(fieldStatID, globalStatsID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return statsItem{}, err
	}
	var item statsItem
	if out.Item != nil {
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return statsItem{}, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return item, nil
}

// Reconcile recounts events and leads with full scans and overwrites the
// counters item. The write is conditioned on the version read before the
// scan; a counter update landing in between forces a fresh recount.
func (r *EventRepo) Reconcile(ctx context.Context) (before, after domain.Stats, err error) {
	for i := 0; i < reconcileRetries; i++ {
		before, after, err = r.reconcileOnce(ctx)
		if !errors.Is(err, domain.ErrConflict) {
			return before, after, err
		}
	}
	return before, after, err
}

func (r *EventRepo) reconcileOnce(ctx context.Context) (before, after domain.Stats, err error) {
	prev, err := r.loadStats(ctx)
	if err != nil {
		return before, after, err
	}
	before = prev.toDomain()
	events, err := r.scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		ProjectionExpression:     aws.String("#id, #st"),
		ExpressionAttributeNames: map[string]string{"#id": fieldEventID, "#st": fieldStatus},
	})
	if err != nil {
		return before, after, err
	}
	for _, e := range events {
		after = after.Apply(domain.TransitionDelta("", e.Status))
	}
	if after.Leads.Total, err = r.leads.count(ctx); err != nil {
		return before, after, err
	}

	input, err := recountPut(r.statsTable, after, prev.Version)
	if err != nil {
		return before, after, err
	}
	_, err = r.client.PutItem(ctx, input)
	if conditionFailed(err) {
		return before, after, fmt.Errorf("counters moved during recount: %w", domain.ErrConflict)
	}
	return before, after, err
}

// recountPut overwrites the counters only if their version is still seen.
// Version zero means no update has ever stamped one.
func recountPut(table string, s domain.Stats, seen int64) (*dynamodb.PutItemInput, error) {
	item, err := attributevalue.MarshalMap(statsItemFrom(s, seen+1))
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ExpressionAttributeNames: map[string]string{"#sv": fieldVersion},
	}
	if seen == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#sv)")
	} else {
		input.ConditionExpression = aws.String("#sv = :sv")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":sv": numVal(seen)}
	}
	return input, nil
}
