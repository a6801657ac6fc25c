package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/model"
)

const (
	maxDemoLetterCount = 50
	demoLetterTTL      = 24 * time.Hour
)

// LetterStore implements adapter.LetterStore.
// If client is nil, it uses an in-memory map (for tests).
// If client is set, it uses DynamoDB (for dev mode persistence and the Lambda deployment).
type LetterStore struct {
	client    *dynamodb.Client
	tableName string

	// Fallback for tests
	letters map[string]LetterItem
	mu      sync.RWMutex
}

// LetterItem is the DynamoDB row. The full letter travels as JSON in Body so that
// legacy page shapes survive untouched; the other attributes exist for filtering.
type LetterItem struct {
	PK        string `dynamodbav:"pk"`
	Owner     string `dynamodbav:"owner"`
	From      string `dynamodbav:"from_uid"`
	To        string `dynamodbav:"to_uid"`
	Timestamp int64  `dynamodbav:"timestamp"`
	Body      string `dynamodbav:"body"`
	TTL       int64  `dynamodbav:"ttl,omitempty"`
}

// NewLetterStore creates a LetterStore. Pass a nil client for a purely in-memory store.
func NewLetterStore(client *dynamodb.Client, tableName string) *LetterStore {
	return &LetterStore{
		client:    client,
		tableName: tableName,
		letters:   make(map[string]LetterItem),
	}
}

func (s *LetterStore) CreateLetter(ctx context.Context, letter *model.Letter) error {
	if model.IsDemoUser(letter.Owner) {
		count, err := s.countOwnerLetters(ctx, letter.Owner)
		if err != nil {
			return err
		}
		if count >= maxDemoLetterCount {
			return fmt.Errorf("letter limit reached (%d): %w", maxDemoLetterCount, adapter.ErrLimitExceeded)
		}
	}

	if s.client == nil {
		return s.createLetterMap(letter)
	}

	item, err := toItem(letter)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal letter: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return adapter.ErrAlreadyExists
		}
		return fmt.Errorf("failed to put letter: %w", err)
	}
	return nil
}

func (s *LetterStore) GetLetter(ctx context.Context, id string) (*model.Letter, error) {
	if s.client == nil {
		return s.getLetterMap(id)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get letter: %w", err)
	}
	if out.Item == nil {
		return nil, adapter.ErrNotFound
	}

	var item LetterItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal letter: %w", err)
	}
	return fromItem(item)
}

func (s *LetterStore) ListLetters(ctx context.Context, query adapter.LetterQuery) ([]model.Letter, error) {
	if s.client == nil {
		return s.listLettersMap(query)
	}

	// Scan and filter (fine for dev and small demo tables)
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	var filters []string
	values := map[string]types.AttributeValue{}
	if query.Owner != "" {
		filters = append(filters, "#owner = :owner")
		values[":owner"] = &types.AttributeValueMemberS{Value: query.Owner}
	}
	if query.From != "" {
		filters = append(filters, "from_uid = :from")
		values[":from"] = &types.AttributeValueMemberS{Value: query.From}
	}
	if query.To != "" {
		filters = append(filters, "to_uid = :to")
		values[":to"] = &types.AttributeValueMemberS{Value: query.To}
	}
	if len(filters) > 0 {
		expr := filters[0]
		for _, f := range filters[1:] {
			expr += " AND " + f
		}
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeValues = values
		if query.Owner != "" {
			input.ExpressionAttributeNames = map[string]string{"#owner": "owner"}
		}
	}

	var letters []model.Letter
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan letters: %w", err)
		}
		var items []LetterItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal letters: %w", err)
		}
		for _, item := range items {
			l, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			if query.Matches(l) {
				letters = append(letters, *l)
			}
		}
	}
	return sortAndLimit(letters, query.Limit), nil
}

func (s *LetterStore) DeleteLetter(ctx context.Context, id string) error {
	if s.client == nil {
		return s.deleteLetterMap(id)
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete letter: %w", err)
	}
	return nil
}

func (s *LetterStore) countOwnerLetters(ctx context.Context, owner string) (int, error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		n := 0
		for _, item := range s.letters {
			if item.Owner == owner {
				n++
			}
		}
		return n, nil
	}

	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, err
	}
	return int(out.Count), nil
}

func toItem(letter *model.Letter) (LetterItem, error) {
	body, err := json.Marshal(letter)
	if err != nil {
		return LetterItem{}, fmt.Errorf("failed to encode letter: %w", err)
	}
	item := LetterItem{
		PK:        letter.ID,
		Owner:     letter.Owner,
		From:      letter.From,
		To:        letter.To,
		Timestamp: letter.Timestamp,
		Body:      string(body),
	}
	if model.IsDemoUser(letter.Owner) {
		item.TTL = time.Now().Add(demoLetterTTL).Unix()
	}
	return item, nil
}

func fromItem(item LetterItem) (*model.Letter, error) {
	var l model.Letter
	if err := json.Unmarshal([]byte(item.Body), &l); err != nil {
		return nil, fmt.Errorf("failed to decode letter %s: %w", item.PK, err)
	}
	l.ID = item.PK
	l.Normalize()
	return &l, nil
}

func sortAndLimit(letters []model.Letter, limit int) []model.Letter {
	sort.SliceStable(letters, func(i, j int) bool {
		return letters[i].Timestamp > letters[j].Timestamp
	})
	if limit > 0 && len(letters) > limit {
		letters = letters[:limit]
	}
	if letters == nil {
		letters = []model.Letter{}
	}
	return letters
}

func (s *LetterStore) createLetterMap(letter *model.Letter) error {
	item, err := toItem(letter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.letters[item.PK]; ok {
		return adapter.ErrAlreadyExists
	}
	s.letters[item.PK] = item
	return nil
}

func (s *LetterStore) getLetterMap(id string) (*model.Letter, error) {
	s.mu.RLock()
	item, ok := s.letters[id]
	s.mu.RUnlock()
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return fromItem(item)
}

func (s *LetterStore) listLettersMap(query adapter.LetterQuery) ([]model.Letter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var letters []model.Letter
	for _, item := range s.letters {
		l, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		if query.Matches(l) {
			letters = append(letters, *l)
		}
	}
	return sortAndLimit(letters, query.Limit), nil
}

func (s *LetterStore) deleteLetterMap(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.letters[id]; !ok {
		return adapter.ErrNotFound
	}
	delete(s.letters, id)
	return nil
}

// PutRaw stores a row without any checks. Tests use it to seed legacy records.
func (s *LetterStore) PutRaw(item LetterItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[item.PK] = item
}
