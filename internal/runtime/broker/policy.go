package broker

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/drblury/sqsbinder/internal/runtime/jsoncodec"
)

const (
	policyVersion      = "2012-10-17"
	subscriptionSidPre = "topic-subscription-"
)

// grantTopicDelivery adds a statement allowing topicArn to send messages to
// queueArn. Existing statements are kept. changed is false when a statement
// with the same Sid is already present.
func grantTopicDelivery(existing, topicArn, queueArn string) (string, bool, error) {
	doc := map[string]any{}
	if existing != "" {
		if err := jsoncodec.Unmarshal([]byte(existing), &doc); err != nil {
			return "", false, fmt.Errorf("parse queue policy: %w", err)
		}
	}
	if _, ok := doc["Version"]; !ok {
		doc["Version"] = policyVersion
	}

	statements, err := policyStatements(doc)
	if err != nil {
		return "", false, err
	}

	sid := subscriptionSidPre + topicArn
	if hasStatement(statements, sid) {
		return existing, false, nil
	}

	statements = append(statements, map[string]any{
		"Sid":       sid,
		"Effect":    "Allow",
		"Principal": map[string]any{"AWS": "*"},
		"Action":    "SQS:SendMessage",
		"Resource":  queueArn,
		"Condition": map[string]any{
			"ArnLike": map[string]any{"aws:SourceArn": topicArn},
		},
	})
	doc["Statement"] = statements

	out, err := jsoncodec.Marshal(doc)
	if err != nil {
		return "", false, fmt.Errorf("encode queue policy: %w", err)
	}
	return string(out), true, nil
}

// applyQueuePolicy returns the configured policy extended with the topic
// delivery grants found in existing, so re-applying a configured policy never
// revokes a subscription. changed is false when existing already matches.
func applyQueuePolicy(existing, configured string) (string, bool, error) {
	desired, err := parsePolicy(configured)
	if err != nil {
		return "", false, fmt.Errorf("parse configured queue policy: %w", err)
	}
	desiredStatements, err := policyStatements(desired)
	if err != nil {
		return "", false, err
	}

	var current map[string]any
	if existing != "" {
		if current, err = parsePolicy(existing); err != nil {
			return "", false, fmt.Errorf("parse queue policy: %w", err)
		}
		currentStatements, err := policyStatements(current)
		if err != nil {
			return "", false, err
		}
		for _, st := range currentStatements {
			sid := statementSid(st)
			if strings.HasPrefix(sid, subscriptionSidPre) && !hasStatement(desiredStatements, sid) {
				desiredStatements = append(desiredStatements, st)
			}
		}
	}
	if len(desiredStatements) > 0 {
		desired["Statement"] = desiredStatements
	}

	if reflect.DeepEqual(current, desired) {
		return existing, false, nil
	}
	out, err := jsoncodec.Marshal(desired)
	if err != nil {
		return "", false, fmt.Errorf("encode queue policy: %w", err)
	}
	return string(out), true, nil
}

func parsePolicy(policy string) (map[string]any, error) {
	doc := map[string]any{}
	if err := jsoncodec.Unmarshal([]byte(policy), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func policyStatements(doc map[string]any) ([]any, error) {
	switch s := doc["Statement"].(type) {
	case nil:
		return nil, nil
	case []any:
		return s, nil
	case map[string]any:
		return []any{s}, nil
	default:
		return nil, fmt.Errorf("parse queue policy: unexpected Statement type %T", s)
	}
}

func statementSid(st any) string {
	m, ok := st.(map[string]any)
	if !ok {
		return ""
	}
	sid, _ := m["Sid"].(string)
	return sid
}

func hasStatement(statements []any, sid string) bool {
	for _, st := range statements {
		if statementSid(st) == sid {
			return true
		}
	}
	return false
}
