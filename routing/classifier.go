// Package routing decides, for each outgoing request, which node
// should serve it: round-robin by default, or a node chosen by
// hashing the request's partition key when the configured affinity
// mode calls for it.
package routing

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AffinityMode controls which write requests qualify for
// partition-key routing.
type AffinityMode int

const (
	// ModeNone disables key-affinity routing entirely; every request
	// uses round-robin.
	ModeNone AffinityMode = iota
	// ModeReadModifyWrite routes only requests that imply a
	// server-side read before the write: conditional writes, legacy
	// expected-value checks, update expressions, and return-value
	// modes that require the prior item.
	ModeReadModifyWrite
	// ModeAnyWrite routes every PutItem, UpdateItem, and DeleteItem.
	ModeAnyWrite
)

func (m AffinityMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeReadModifyWrite:
		return "read-modify-write"
	case ModeAnyWrite:
		return "any-write"
	default:
		return "unknown"
	}
}

// ShouldApply decides whether req qualifies for key-affinity routing
// under mode. GetItem, Query, BatchWriteItem, and any other request
// shape always return false — BatchWriteItem spans multiple
// partitions and is unroutable by a single key.
func ShouldApply(mode AffinityMode, req interface{}) bool {
	if mode == ModeNone {
		return false
	}

	switch v := req.(type) {
	case *dynamodb.PutItemInput:
		return mode == ModeAnyWrite || isConditionalPutOrDelete(v.ConditionExpression, v.Expected, v.ReturnValues)
	case *dynamodb.DeleteItemInput:
		return mode == ModeAnyWrite || isConditionalPutOrDelete(v.ConditionExpression, v.Expected, v.ReturnValues)
	case *dynamodb.UpdateItemInput:
		return mode == ModeAnyWrite || isReadModifyWriteUpdate(v)
	default:
		return false
	}
}

func isConditionalPutOrDelete(conditionExpr *string, expected map[string]types.ExpectedAttributeValue, returnValues types.ReturnValue) bool {
	if conditionExpr != nil && *conditionExpr != "" {
		return true
	}
	if len(expected) > 0 {
		return true
	}
	return returnValues != "" && returnValues != types.ReturnValueNone
}

func isReadModifyWriteUpdate(v *dynamodb.UpdateItemInput) bool {
	if v.UpdateExpression != nil && *v.UpdateExpression != "" {
		return true
	}
	if v.ConditionExpression != nil && *v.ConditionExpression != "" {
		return true
	}
	if len(v.Expected) > 0 {
		return true
	}
	switch v.ReturnValues {
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld, types.ReturnValueAllNew:
		return true
	}
	for _, upd := range v.AttributeUpdates {
		if upd.Action == types.AttributeActionAdd {
			return true
		}
		if upd.Action == types.AttributeActionDelete && upd.Value != nil {
			return true
		}
	}
	return false
}

// ExtractPartitionKey looks up pkName in req's key map (UpdateItem,
// DeleteItem, GetItem) or item map (PutItem), returning the typed
// value and whether it was present.
func ExtractPartitionKey(req interface{}, pkName string) (types.AttributeValue, bool) {
	switch v := req.(type) {
	case *dynamodb.PutItemInput:
		val, ok := v.Item[pkName]
		return val, ok
	case *dynamodb.DeleteItemInput:
		val, ok := v.Key[pkName]
		return val, ok
	case *dynamodb.UpdateItemInput:
		val, ok := v.Key[pkName]
		return val, ok
	case *dynamodb.GetItemInput:
		val, ok := v.Key[pkName]
		return val, ok
	default:
		return nil, false
	}
}

// TableName returns the table name carried by req, or "" if req isn't
// a request type this package routes.
func TableName(req interface{}) (string, bool) {
	switch v := req.(type) {
	case *dynamodb.PutItemInput:
		return derefString(v.TableName)
	case *dynamodb.DeleteItemInput:
		return derefString(v.TableName)
	case *dynamodb.UpdateItemInput:
		return derefString(v.TableName)
	case *dynamodb.GetItemInput:
		return derefString(v.TableName)
	default:
		return "", false
	}
}

func derefString(s *string) (string, bool) {
	if s == nil || *s == "" {
		return "", false
	}
	return *s, true
}
