// Package lockers assigns pickup lockers to orders that are due for delivery.
package lockers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
)

// ErrNoLockerAvailable is returned when every locker of the pool is reserved for the date.
var ErrNoLockerAvailable = errors.New("no locker available")

// Allocator reserves a locker for an order on a delivery date, or fails.
type Allocator interface {
	Reserve(ctx context.Context, deliveryDate string, orderID int64) (int, error)
	Release(ctx context.Context, deliveryDate string, lockerID int, orderID int64) error
}

// RandomPool picks a locker uniformly from [0, size) without tracking reservations.
// Two orders may end up with the same locker; use TableAllocator outside demos.
type RandomPool struct {
	size int
	rand func(n int) int
}

// NewRandomPool returns a demo allocator over size lockers.
func NewRandomPool(size int) *RandomPool {
	return &RandomPool{size: size, rand: rand.IntN}
}

func (p *RandomPool) Reserve(context.Context, string, int64) (int, error) {
	if p.size <= 0 {
		return 0, ErrNoLockerAvailable
	}
	return p.rand(p.size), nil
}

func (p *RandomPool) Release(context.Context, string, int, int64) error { return nil }

// Reservation is one row of the locker reservations table.
type Reservation struct {
	ReservationID string `dynamodbav:"reservationId"` // PK: <deliveryDate>#<lockerId>
	DeliveryDate  string `dynamodbav:"deliveryDate"`
	LockerID      int    `dynamodbav:"lockerId"`
	OrderID       int64  `dynamodbav:"orderId"`
	ReservedAt    string `dynamodbav:"reservedAt"`
}

// TableAllocator reserves lockers with conditional puts, one item per (date, locker).
// A put only succeeds while the slot is free, so concurrent processors never share a locker.
type TableAllocator struct {
	client    aws.DynamoDBAPI
	tableName string
	size      int
	nowFunc   func() time.Time
	shuffle   func(n int, swap func(i, j int))
}

// NewTableAllocator returns an allocator over size lockers backed by tableName.
func NewTableAllocator(client aws.DynamoDBAPI, tableName string, size int) *TableAllocator {
	return &TableAllocator{
		client:    client,
		tableName: tableName,
		size:      size,
		nowFunc:   time.Now,
		shuffle:   rand.Shuffle,
	}
}

// Reserve tries the lockers in random order and returns the first one it manages to claim.
// If orderID already holds a locker for the date, that locker is returned.
func (a *TableAllocator) Reserve(ctx context.Context, deliveryDate string, orderID int64) (int, error) {
	ids := make([]int, a.size)
	for i := range ids {
		ids[i] = i
	}
	a.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for _, lockerID := range ids {
		res := Reservation{
			ReservationID: reservationID(deliveryDate, lockerID),
			DeliveryDate:  deliveryDate,
			LockerID:      lockerID,
			OrderID:       orderID,
			ReservedAt:    a.nowFunc().UTC().Format(time.RFC3339),
		}
		item, err := attributevalue.MarshalMap(res)
		if err != nil {
			return 0, fmt.Errorf("marshal reservation: %w", err)
		}

		_, err = a.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:                           &a.tableName,
			Item:                                item,
			ConditionExpression:                 awsString("attribute_not_exists(reservationId)"),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		if err == nil {
			return lockerID, nil
		}

		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return 0, fmt.Errorf("reserve locker %d: %w", lockerID, err)
		}
		var held Reservation
		if uerr := attributevalue.UnmarshalMap(ccf.Item, &held); uerr == nil && held.OrderID == orderID {
			return lockerID, nil
		}
	}
	return 0, fmt.Errorf("%w for %s (pool of %d)", ErrNoLockerAvailable, deliveryDate, a.size)
}

// Release frees the locker if orderID still holds it.
func (a *TableAllocator) Release(ctx context.Context, deliveryDate string, lockerID int, orderID int64) error {
	_, err := a.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &a.tableName,
		Key: map[string]types.AttributeValue{
			"reservationId": &types.AttributeValueMemberS{Value: reservationID(deliveryDate, lockerID)},
		},
		ConditionExpression: awsString("orderId = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("release locker %d: %w", lockerID, err)
	}
	return nil
}

func reservationID(deliveryDate string, lockerID int) string {
	return deliveryDate + "#" + strconv.Itoa(lockerID)
}

func awsString(s string) *string { return &s }
