// Package awstest provides in-memory fakes of the AWS clients used by the order flow.
//
// The DynamoDB fake understands the small expression dialect the stores issue:
// conditions and filters joined by AND built from attribute_exists(x),
// attribute_not_exists(x) and x = :v, and SET-only update expressions.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Change is one entry of the fake's change log, the equivalent of a stream record.
type Change struct {
	Table     string
	EventName string // INSERT | MODIFY | REMOVE
	Keys      map[string]types.AttributeValue
	OldImage  map[string]types.AttributeValue
	NewImage  map[string]types.AttributeValue
}

// DynamoDB is an in-memory DynamoDB with single-attribute partition keys.
type DynamoDB struct {
	mu      sync.Mutex
	pks     map[string]string
	tables  map[string]map[string]map[string]types.AttributeValue
	changes []Change
	errs    map[string]error
	calls   map[string]int
}

// NewDynamoDB returns an empty fake.
func NewDynamoDB() *DynamoDB {
	return &DynamoDB{
		pks:    map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table and its partition key attribute.
func (d *DynamoDB) CreateTable(name, partitionKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pks[name] = partitionKey
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = map[string]map[string]types.AttributeValue{}
	}
}

// FailOn makes every call of op (e.g. "PutItem") return err. A nil err clears it.
func (d *DynamoDB) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, op)
		return
	}
	d.errs[op] = err
}

// Calls returns how many times op was invoked.
func (d *DynamoDB) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Item returns a copy of the stored item for key, or nil.
func (d *DynamoDB) Item(table string, key types.AttributeValue) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.tables[table][keyString(key)]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Items returns copies of all items of table ordered by key.
func (d *DynamoDB) Items(table string) []map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedItems(table)
}

// Changes returns the change log accumulated so far.
func (d *DynamoDB) Changes() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Change, len(d.changes))
	copy(out, d.changes)
	return out
}

// ResetChanges truncates the change log.
func (d *DynamoDB) ResetChanges() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = nil
}

func (d *DynamoDB) begin(op string) error {
	d.calls[op]++
	return d.errs[op]
}

func (d *DynamoDB) table(name *string) (map[string]map[string]types.AttributeValue, string, error) {
	if name == nil {
		return nil, "", errors.New("missing table name")
	}
	tbl, ok := d.tables[*name]
	if !ok {
		return nil, "", &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + *name)}
	}
	return tbl, d.pks[*name], nil
}

func (d *DynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("PutItem"); err != nil {
		return nil, err
	}
	tbl, pk, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	keyAttr, ok := in.Item[pk]
	if !ok {
		return nil, fmt.Errorf("item missing partition key %q", pk)
	}
	k := keyString(keyAttr)
	old := tbl[k]
	ok, err = evalCondition(deref(in.ConditionExpression), old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	tbl[k] = copyItem(in.Item)
	d.record(*in.TableName, pk, old, tbl[k])
	return &dynamodb.PutItemOutput{}, nil
}

func (d *DynamoDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("GetItem"); err != nil {
		return nil, err
	}
	tbl, pk, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	item, ok := tbl[keyString(in.Key[pk])]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *DynamoDB) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("UpdateItem"); err != nil {
		return nil, err
	}
	tbl, pk, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	keyAttr, ok := in.Key[pk]
	if !ok {
		return nil, fmt.Errorf("key missing partition key %q", pk)
	}
	k := keyString(keyAttr)
	old := tbl[k]
	ok, err = evalCondition(deref(in.ConditionExpression), old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}

	next := copyItem(old)
	if next == nil {
		next = map[string]types.AttributeValue{pk: keyAttr}
	}
	if err := applyUpdate(deref(in.UpdateExpression), next, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	tbl[k] = next
	d.record(*in.TableName, pk, old, next)

	out := &dynamodb.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (d *DynamoDB) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("DeleteItem"); err != nil {
		return nil, err
	}
	tbl, pk, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	k := keyString(in.Key[pk])
	old := tbl[k]
	ok, err := evalCondition(deref(in.ConditionExpression), old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	if old != nil {
		delete(tbl, k)
		d.record(*in.TableName, pk, old, nil)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *DynamoDB) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("Query"); err != nil {
		return nil, err
	}
	if _, _, err := d.table(in.TableName); err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, item := range d.sortedItems(*in.TableName) {
		ok, err := evalCondition(deref(in.KeyConditionExpression), item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = evalCondition(deref(in.FilterExpression), item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (d *DynamoDB) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("Scan"); err != nil {
		return nil, err
	}
	if _, _, err := d.table(in.TableName); err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, item := range d.sortedItems(*in.TableName) {
		ok, err := evalCondition(deref(in.FilterExpression), item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

func (d *DynamoDB) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	canceled := false
	for i, it := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}
		p := it.Put
		if p == nil {
			return nil, errors.New("fake only supports Put in transactions")
		}
		tbl, pk, err := d.table(p.TableName)
		if err != nil {
			return nil, err
		}
		old := tbl[keyString(p.Item[pk])]
		ok, err := evalCondition(deref(p.ConditionExpression), old, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			canceled = true
			reasons[i] = types.CancellationReason{Code: sdkaws.String("ConditionalCheckFailed"), Item: copyItem(old)}
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range in.TransactItems {
		p := it.Put
		tbl, pk, _ := d.table(p.TableName)
		k := keyString(p.Item[pk])
		old := tbl[k]
		tbl[k] = copyItem(p.Item)
		d.record(*p.TableName, pk, old, tbl[k])
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (d *DynamoDB) record(table, pk string, old, next map[string]types.AttributeValue) {
	c := Change{Table: table, OldImage: copyItem(old), NewImage: copyItem(next)}
	switch {
	case old == nil:
		c.EventName = "INSERT"
		c.Keys = map[string]types.AttributeValue{pk: next[pk]}
	case next == nil:
		c.EventName = "REMOVE"
		c.Keys = map[string]types.AttributeValue{pk: old[pk]}
	default:
		c.EventName = "MODIFY"
		c.Keys = map[string]types.AttributeValue{pk: next[pk]}
	}
	d.changes = append(d.changes, c)
}

func (d *DynamoDB) sortedItems(table string) []map[string]types.AttributeValue {
	tbl := d.tables[table]
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyItem(tbl[k]))
	}
	return out
}

func conditionFailed(old map[string]types.AttributeValue, rv types.ReturnValuesOnConditionCheckFailure) error {
	e := &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		e.Item = copyItem(old)
	}
	return e
}

func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		var ok bool
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			name := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
			_, exists := item[name]
			ok = !exists
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			name := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			_, ok = item[name]
		case strings.Contains(clause, "="):
			lhs, rhs, _ := strings.Cut(clause, "=")
			name := resolveName(strings.TrimSpace(lhs), names)
			want, found := values[strings.TrimSpace(rhs)]
			if !found {
				return false, fmt.Errorf("missing expression value %q", strings.TrimSpace(rhs))
			}
			got, exists := item[name]
			ok = exists && avEqual(got, want)
		default:
			return false, fmt.Errorf("unsupported expression clause %q", clause)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(strings.ToUpper(expr), "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(expr[4:], ",") {
		lhs, rhs, found := strings.Cut(assign, "=")
		if !found {
			return fmt.Errorf("unsupported assignment %q", assign)
		}
		v, ok := values[strings.TrimSpace(rhs)]
		if !ok {
			return fmt.Errorf("missing expression value %q", strings.TrimSpace(rhs))
		}
		item[resolveName(strings.TrimSpace(lhs), names)] = v
	}
	return nil
}

func resolveName(n string, names map[string]string) string {
	n = strings.TrimSpace(n)
	if strings.HasPrefix(n, "#") {
		if real, ok := names[n]; ok {
			return real
		}
	}
	return n
}

func avEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return reflect.DeepEqual(a, b)
}

func keyString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case nil:
		return ""
	}
	return fmt.Sprintf("%T:%v", av, av)
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
