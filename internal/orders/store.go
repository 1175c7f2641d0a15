package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
)

// TimestampLayout renders timestamps the way the order producers do (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrAlreadyAccepted is returned by Accept when the order already has a locker or acceptance time.
	ErrAlreadyAccepted = errors.New("order already accepted")
	// ErrNotFound is returned when no order exists for the id.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateRequest is returned when the idempotency key of a create already exists.
	ErrDuplicateRequest = errors.New("idempotency key already used")
	// ErrOrderExists is returned when a create collides with an existing orderId.
	ErrOrderExists = errors.New("order id already exists")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Put writes the order unconditionally.
func (s *Store) Put(ctx context.Context, o Order) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put order %d: %w", o.OrderID, err)
	}
	return nil
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID int64) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Accept moves the order to orderAccepted with lockerID and the acceptance time, guarded by both
// attributes being absent. A repeated accept fails with ErrAlreadyAccepted and changes nothing.
func (s *Store) Accept(ctx context.Context, orderID int64, lockerID int, at time.Time) (*Order, error) {
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET #st = :accepted, #ut = :ut, #locker = :locker"),
		ConditionExpression: awsString(
			"attribute_exists(#pk) AND attribute_not_exists(#ut) AND attribute_not_exists(#locker)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":     "orderId",
			"#st":     "orderStatus",
			"#ut":     "updatedTimestamp",
			"#locker": "lockerId",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":accepted": &types.AttributeValueMemberS{Value: StatusAccepted},
			":ut":       &types.AttributeValueMemberS{Value: at.UTC().Format(TimestampLayout)},
			":locker":   &types.AttributeValueMemberN{Value: strconv.Itoa(lockerID)},
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, ErrNotFound
			}
			return nil, ErrAlreadyAccepted
		}
		return nil, fmt.Errorf("accept order %d: %w", orderID, err)
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal accepted order: %w", err)
	}
	return &o, nil
}

// FindDue returns the order with orderID if it is due on deliveryDate. Returns (nil, nil) otherwise.
func (s *Store) FindDue(ctx context.Context, orderID int64, deliveryDate string) (*Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: awsString("#pk = :id"),
		FilterExpression:       awsString("attribute_exists(#dd) AND #dd = :date"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "orderId",
			"#dd": "deliveryDate",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":   &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
			":date": &types.AttributeValueMemberS{Value: deliveryDate},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query order %d: %w", orderID, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListPending returns every submitted, not yet accepted order due on deliveryDate.
func (s *Store) ListPending(ctx context.Context, deliveryDate string) ([]Order, error) {
	p := dyn.NewScanPaginator(s.client, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("#st = :submitted AND #dd = :date AND attribute_not_exists(#locker)"),
		ExpressionAttributeNames: map[string]string{
			"#st":     "orderStatus",
			"#dd":     "deliveryDate",
			"#locker": "lockerId",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":submitted": &types.AttributeValueMemberS{Value: StatusSubmitted},
			":date":      &types.AttributeValueMemberS{Value: deliveryDate},
		},
	})

	var out []Order
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan pending orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal pending orders: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table
//
// idempotencyItem must be a serializable struct with attribute idempotency_key present.
// Returns ErrDuplicateRequest when the idempotency key already exists and ErrOrderExists when
// only the order id collides. Other cancellations (e.g. TransactionConflict) are returned wrapped.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration, now time.Time) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := now.Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(orderId)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			switch {
			case conditionFailed(tce.CancellationReasons, 0):
				return fmt.Errorf("%w: %v", ErrDuplicateRequest, err)
			case conditionFailed(tce.CancellationReasons, 1):
				return fmt.Errorf("%w: %v", ErrOrderExists, err)
			}
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// conditionFailed reports whether the i-th transaction item was canceled by its condition.
func conditionFailed(reasons []types.CancellationReason, i int) bool {
	return i < len(reasons) && reasons[i].Code != nil && *reasons[i].Code == "ConditionalCheckFailed"
}

func orderKey(orderID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"orderId": &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
