package awstest

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StreamEvent renders the change log entries of table as a DynamoDB stream event
// with NEW_AND_OLD_IMAGES view type.
func StreamEvent(changes []Change, table string) events.DynamoDBEvent {
	var ev events.DynamoDBEvent
	seq := 0
	for _, c := range changes {
		if c.Table != table {
			continue
		}
		seq++
		ev.Records = append(ev.Records, events.DynamoDBEventRecord{
			EventID:     fmt.Sprintf("event-%d", seq),
			EventName:   c.EventName,
			EventSource: "aws:dynamodb",
			AWSRegion:   "eu-west-1",
			Change: events.DynamoDBStreamRecord{
				Keys:           ToStreamImage(c.Keys),
				NewImage:       ToStreamImage(c.NewImage),
				OldImage:       ToStreamImage(c.OldImage),
				SequenceNumber: fmt.Sprintf("%021d", seq),
				StreamViewType: "NEW_AND_OLD_IMAGES",
			},
		})
	}
	return ev
}

// ToStreamImage converts SDK attribute values into their stream event form.
func ToStreamImage(item map[string]types.AttributeValue) map[string]events.DynamoDBAttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]events.DynamoDBAttributeValue, len(item))
	for k, v := range item {
		out[k] = toStreamValue(v)
	}
	return out
}

func toStreamValue(av types.AttributeValue) events.DynamoDBAttributeValue {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return events.NewStringAttribute(v.Value)
	case *types.AttributeValueMemberN:
		return events.NewNumberAttribute(v.Value)
	case *types.AttributeValueMemberBOOL:
		return events.NewBooleanAttribute(v.Value)
	case *types.AttributeValueMemberB:
		return events.NewBinaryAttribute(v.Value)
	case *types.AttributeValueMemberSS:
		return events.NewStringSetAttribute(v.Value)
	case *types.AttributeValueMemberNS:
		return events.NewNumberSetAttribute(v.Value)
	case *types.AttributeValueMemberBS:
		return events.NewBinarySetAttribute(v.Value)
	case *types.AttributeValueMemberL:
		list := make([]events.DynamoDBAttributeValue, 0, len(v.Value))
		for _, e := range v.Value {
			list = append(list, toStreamValue(e))
		}
		return events.NewListAttribute(list)
	case *types.AttributeValueMemberM:
		return events.NewMapAttribute(ToStreamImage(v.Value))
	}
	return events.NewNullAttribute()
}
