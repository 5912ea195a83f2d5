package routing

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func strp(s string) *string { return &s }

func TestShouldApply_ModeNoneNeverApplies(t *testing.T) {
	put := &dynamodb.PutItemInput{ConditionExpression: strp("attribute_not_exists(id)")}
	if ShouldApply(ModeNone, put) {
		t.Fatal("expected ModeNone to never apply")
	}
}

func TestShouldApply_AnyWriteAppliesToAllWrites(t *testing.T) {
	cases := []interface{}{
		&dynamodb.PutItemInput{},
		&dynamodb.DeleteItemInput{},
		&dynamodb.UpdateItemInput{},
	}
	for _, c := range cases {
		if !ShouldApply(ModeAnyWrite, c) {
			t.Fatalf("expected AnyWrite to apply to %T", c)
		}
	}
}

func TestShouldApply_AnyWriteNeverAppliesToReads(t *testing.T) {
	if ShouldApply(ModeAnyWrite, &dynamodb.GetItemInput{}) {
		t.Fatal("expected GetItem to never be routed")
	}
	if ShouldApply(ModeAnyWrite, &dynamodb.BatchWriteItemInput{}) {
		t.Fatal("expected BatchWriteItem to never be routed")
	}
}

func TestShouldApply_ReadModifyWritePut(t *testing.T) {
	plain := &dynamodb.PutItemInput{}
	if ShouldApply(ModeReadModifyWrite, plain) {
		t.Fatal("expected unconditional put to not apply under RMW")
	}

	conditional := &dynamodb.PutItemInput{ConditionExpression: strp("attribute_not_exists(id)")}
	if !ShouldApply(ModeReadModifyWrite, conditional) {
		t.Fatal("expected conditional put to apply under RMW")
	}

	withReturn := &dynamodb.PutItemInput{ReturnValues: types.ReturnValueAllOld}
	if !ShouldApply(ModeReadModifyWrite, withReturn) {
		t.Fatal("expected put with ReturnValues to apply under RMW")
	}
}

func TestShouldApply_ReadModifyWriteUpdate(t *testing.T) {
	plain := &dynamodb.UpdateItemInput{}
	if ShouldApply(ModeReadModifyWrite, plain) {
		t.Fatal("expected bare update to not apply under RMW")
	}

	withExpr := &dynamodb.UpdateItemInput{UpdateExpression: strp("SET x = :v")}
	if !ShouldApply(ModeReadModifyWrite, withExpr) {
		t.Fatal("expected update expression to apply under RMW")
	}

	updatedNewOnly := &dynamodb.UpdateItemInput{ReturnValues: types.ReturnValueUpdatedNew}
	if ShouldApply(ModeReadModifyWrite, updatedNewOnly) {
		t.Fatal("expected UpdatedNew alone to not apply under RMW")
	}

	addAction := &dynamodb.UpdateItemInput{
		AttributeUpdates: map[string]types.AttributeValueUpdate{
			"count": {Action: types.AttributeActionAdd},
		},
	}
	if !ShouldApply(ModeReadModifyWrite, addAction) {
		t.Fatal("expected legacy ADD action to apply under RMW")
	}

	deleteNoValue := &dynamodb.UpdateItemInput{
		AttributeUpdates: map[string]types.AttributeValueUpdate{
			"tags": {Action: types.AttributeActionDelete},
		},
	}
	if ShouldApply(ModeReadModifyWrite, deleteNoValue) {
		t.Fatal("expected bare DELETE without value to not apply under RMW")
	}

	deleteWithValue := &dynamodb.UpdateItemInput{
		AttributeUpdates: map[string]types.AttributeValueUpdate{
			"tags": {Action: types.AttributeActionDelete, Value: &types.AttributeValueMemberS{Value: "x"}},
		},
	}
	if !ShouldApply(ModeReadModifyWrite, deleteWithValue) {
		t.Fatal("expected DELETE with value to apply under RMW")
	}
}

// TestShouldApply_ReadModifyWriteBuiltExpressions exercises the same
// decision table with condition/update expressions built the way a
// caller actually constructs them, via expression.Builder, instead of
// hand-written expression strings.
func TestShouldApply_ReadModifyWriteBuiltExpressions(t *testing.T) {
	condExpr, err := expression.NewBuilder().
		WithCondition(expression.Name("id").AttributeNotExists()).
		Build()
	if err != nil {
		t.Fatalf("building condition expression: %v", err)
	}
	conditionalPut := &dynamodb.PutItemInput{
		ConditionExpression:       condExpr.Condition(),
		ExpressionAttributeNames:  condExpr.Names(),
		ExpressionAttributeValues: condExpr.Values(),
	}
	if !ShouldApply(ModeReadModifyWrite, conditionalPut) {
		t.Fatal("expected a built condition expression to apply under RMW")
	}

	updateExpr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("count"), expression.Value(1))).
		Build()
	if err != nil {
		t.Fatalf("building update expression: %v", err)
	}
	builtUpdate := &dynamodb.UpdateItemInput{
		UpdateExpression:          updateExpr.Update(),
		ExpressionAttributeNames:  updateExpr.Names(),
		ExpressionAttributeValues: updateExpr.Values(),
	}
	if !ShouldApply(ModeReadModifyWrite, builtUpdate) {
		t.Fatal("expected a built update expression to apply under RMW")
	}
}

func TestExtractPartitionKey_PutUsesItemMap(t *testing.T) {
	put := &dynamodb.PutItemInput{
		Item: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: "user-42"},
		},
	}
	val, ok := ExtractPartitionKey(put, "userId")
	if !ok {
		t.Fatal("expected partition key present")
	}
	s, isString := val.(*types.AttributeValueMemberS)
	if !isString || s.Value != "user-42" {
		t.Fatalf("expected user-42, got %v", val)
	}
}

func TestExtractPartitionKey_UpdateUsesKeyMap(t *testing.T) {
	update := &dynamodb.UpdateItemInput{
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: "user-7"},
		},
	}
	_, ok := ExtractPartitionKey(update, "userId")
	if !ok {
		t.Fatal("expected partition key present in key map")
	}
	_, ok = ExtractPartitionKey(update, "missing")
	if ok {
		t.Fatal("expected missing key to report absent")
	}
}

func TestTableName_ReadsEachWriteType(t *testing.T) {
	name, ok := TableName(&dynamodb.PutItemInput{TableName: strp("orders")})
	if !ok || name != "orders" {
		t.Fatalf("expected orders, got %q ok=%v", name, ok)
	}
	if _, ok := TableName(&dynamodb.BatchWriteItemInput{}); ok {
		t.Fatal("expected BatchWriteItem to have no table name")
	}
}
