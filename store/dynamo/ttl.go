package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted checks if an item has an expired TTL (is marked for deletion).
func IsDeleted(item map[string]types.AttributeValue) bool {
	ttlAttr, exists := item["ttl"]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}

// TTLFilterExpr returns the filter expression to exclude deleted items.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// LinkTargetCondition returns the condition expression for link validation.
// Ensures the referenced record exists AND is not deleted.
func LinkTargetCondition() string {
	return "attribute_exists(id) AND (attribute_not_exists(#ttl) OR #ttl > :now)"
}
