package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// DefaultPartition is used when no partition key is configured.
const DefaultPartition = "taskboard"

type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// Tables stores every key as one entity: PartitionKey is fixed, RowKey is the
// key and the value sits in a string property.
type Tables struct {
	table     tableClient
	partition string
}

type kvEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Value        string `json:"Value"`
}

// NewTables creates a Tables backend from a storage connection string.
func NewTables(connStr, table, partition string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTables(svc.NewClient(table), partition), nil
}

func newTables(c tableClient, partition string) *Tables {
	if partition == "" {
		partition = DefaultPartition
	}
	return &Tables{table: c, partition: partition}
}

// EnsureTable creates the table, ignoring the error for an existing one.
func (t *Tables) EnsureTable(ctx context.Context) error {
	_, err := t.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (t *Tables) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := t.table.GetEntity(ctx, t.partition, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var ent kvEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return nil, false, err
	}
	return []byte(ent.Value), true, nil
}

func (t *Tables) Set(ctx context.Context, key string, data []byte) error {
	payload, err := sonic.Marshal(kvEntity{
		PartitionKey: t.partition,
		RowKey:       key,
		Value:        string(data),
	})
	if err != nil {
		return err
	}
	_, err = t.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// Ping reads a sentinel row; a missing row still proves the table is reachable.
func (t *Tables) Ping(ctx context.Context) error {
	_, _, err := t.Get(ctx, "__ping")
	return err
}
