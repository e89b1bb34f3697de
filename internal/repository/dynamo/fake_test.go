package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory table that understands the handful of
// condition and key expressions the store issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	puts  int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func sval(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return sval(item["PK"]) + "|" + sval(item["SK"])
}

func (f *fakeDynamo) check(cur map[string]types.AttributeValue, cond *string, values map[string]types.AttributeValue) bool {
	expr := aws.ToString(cond)
	switch {
	case expr == "":
		return true
	case strings.HasPrefix(expr, "attribute_not_exists(") && strings.HasSuffix(expr, ")"):
		attr := strings.TrimSuffix(strings.TrimPrefix(expr, "attribute_not_exists("), ")")
		_, ok := cur[attr]
		return !ok
	default:
		parts := strings.SplitN(expr, " = ", 2)
		if len(parts) != 2 || cur == nil {
			return false
		}
		return sval(cur[parts[0]]) == sval(values[parts[1]])
	}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Item)
	if !f.check(f.items[k], in.ConditionExpression, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	f.items[k] = in.Item
	f.puts++
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Key)
	if in.ConditionExpression != nil && !f.check(f.items[k], in.ConditionExpression, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if ti.Put == nil {
			return nil, fmt.Errorf("fake: only Put is supported in transactions")
		}
		if !f.check(f.items[itemKey(ti.Put.Item)], ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{Message: aws.String("cancelled"), CancellationReasons: reasons}
	}
	for _, ti := range in.TransactItems {
		f.items[itemKey(ti.Put.Item)] = ti.Put.Item
		f.puts++
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Query supports "X = :v", "begins_with(X, :v)" and "X >= :v" clauses
// joined by AND, returning matches sorted by the index sort key.
func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sortKey := "SK"
	if in.IndexName != nil {
		sortKey = aws.ToString(in.IndexName) + "SK"
	}
	clauses := strings.Split(aws.ToString(in.KeyConditionExpression), " AND ")

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		ok := true
		for _, c := range clauses {
			if !matchClause(item, c, in.ExpressionAttributeValues) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return sval(matched[i][sortKey]) < sval(matched[j][sortKey]) })

	out := &dynamodb.QueryOutput{Count: int32(len(matched))}
	if in.Select != types.SelectCount {
		out.Items = matched
	}
	return out, nil
}

func matchClause(item map[string]types.AttributeValue, clause string, values map[string]types.AttributeValue) bool {
	clause = strings.TrimSpace(clause)
	if strings.HasPrefix(clause, "begins_with(") {
		inner := strings.TrimSuffix(strings.TrimPrefix(clause, "begins_with("), ")")
		parts := strings.SplitN(inner, ", ", 2)
		return strings.HasPrefix(sval(item[parts[0]]), sval(values[parts[1]]))
	}
	if parts := strings.SplitN(clause, " >= ", 2); len(parts) == 2 {
		attr, ok := item[parts[0]]
		return ok && sval(attr) >= sval(values[parts[1]])
	}
	parts := strings.SplitN(clause, " = ", 2)
	attr, ok := item[parts[0]]
	return ok && sval(attr) == sval(values[parts[1]])
}
