package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"datasethub/internal/config"
	"datasethub/internal/domain"
	"datasethub/internal/logutils"
)

const (
	keyPrefix = "datasethub:"
	metaField = "meta"
)

func fileKey(id uuid.UUID) string         { return keyPrefix + "file:" + id.String() }
func fileVersionsKey(id uuid.UUID) string { return fileKey(id) + ":versions" }
func ledgerKey(id uuid.UUID) string       { return keyPrefix + "ledger:" + id.String() }
func ledgerEntriesKey(id uuid.UUID) string {
	return ledgerKey(id) + ":versions"
}

// NewRedisClient возвращает клиента Redis или nil, если Redis не настроен или недоступен.
// nil означает работу на индексе в памяти.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	log := logutils.Component("docstore")
	if cfg.Addr == "" {
		log.Warn("Redis address is not configured, using in-memory document index")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warnf("Redis %s (db %d) is unreachable, using in-memory document index", cfg.Addr, cfg.DB)
		rdb.Close()
		return nil
	}

	log.Infof("Connected to Redis %s (db %d)", cfg.Addr, cfg.DB)
	return rdb
}

// NewIndexWithFallback выбирает Redis, если клиент есть, иначе индекс в памяти
func NewIndexWithFallback(rdb *redis.Client) Index {
	if rdb == nil {
		return NewMemoryIndex()
	}
	return NewRedisIndex(rdb)
}

// RedisIndex хранит документ как hash с полем meta (CBOR шапки) и список версий рядом.
// Добавление версии - RPUSH в список и HSET шапки в одной транзакции MULTI/EXEC.
type RedisIndex struct {
	rdb *redis.Client
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb}
}

func (x *RedisIndex) PutFile(ctx context.Context, file *domain.FileRecord) error {
	meta, err := marshal(toFileDoc(file))
	if err != nil {
		return fmt.Errorf("failed to encode file document: %w", err)
	}
	versions := make([]interface{}, 0, len(file.Versions))
	for _, v := range file.Versions {
		data, err := marshal(toFileVersionDoc(v))
		if err != nil {
			return fmt.Errorf("failed to encode file version: %w", err)
		}
		versions = append(versions, data)
	}

	return x.replace(ctx, fileKey(file.ID), fileVersionsKey(file.ID), meta, versions)
}

func (x *RedisIndex) AppendFileVersion(ctx context.Context, head *domain.FileRecord, v domain.FileVersionEntry) error {
	meta, err := marshal(toFileDoc(head))
	if err != nil {
		return fmt.Errorf("failed to encode file document: %w", err)
	}
	entry, err := marshal(toFileVersionDoc(v))
	if err != nil {
		return fmt.Errorf("failed to encode file version: %w", err)
	}

	return x.appendEntry(ctx, fileKey(head.ID), fileVersionsKey(head.ID), meta, entry)
}

func (x *RedisIndex) GetFile(ctx context.Context, fileID uuid.UUID) (*domain.FileRecord, error) {
	var doc fileDoc
	raw, err := x.load(ctx, fileKey(fileID), fileVersionsKey(fileID), &doc)
	if err != nil {
		return nil, err
	}

	versions := make([]fileVersionDoc, len(raw))
	for i, r := range raw {
		if err := unmarshal([]byte(r), &versions[i]); err != nil {
			return nil, fmt.Errorf("failed to decode file version: %w", err)
		}
	}
	return doc.record(versions), nil
}

func (x *RedisIndex) PutLedger(ctx context.Context, l *domain.VersionLedger) error {
	meta, err := marshal(toLedgerDoc(l))
	if err != nil {
		return fmt.Errorf("failed to encode ledger document: %w", err)
	}
	entries := make([]interface{}, 0, len(l.Entries))
	for _, e := range l.Entries {
		data, err := marshal(toLedgerEntryDoc(e))
		if err != nil {
			return fmt.Errorf("failed to encode ledger entry: %w", err)
		}
		entries = append(entries, data)
	}

	return x.replace(ctx, ledgerKey(l.DatasetID), ledgerEntriesKey(l.DatasetID), meta, entries)
}

func (x *RedisIndex) AppendLedgerVersion(ctx context.Context, head *domain.VersionLedger, e domain.VersionEntry) error {
	meta, err := marshal(toLedgerDoc(head))
	if err != nil {
		return fmt.Errorf("failed to encode ledger document: %w", err)
	}
	entry, err := marshal(toLedgerEntryDoc(e))
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	return x.appendEntry(ctx, ledgerKey(head.DatasetID), ledgerEntriesKey(head.DatasetID), meta, entry)
}

func (x *RedisIndex) GetLedger(ctx context.Context, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	var doc ledgerDoc
	raw, err := x.load(ctx, ledgerKey(datasetID), ledgerEntriesKey(datasetID), &doc)
	if err != nil {
		return nil, err
	}

	entries := make([]ledgerEntryDoc, len(raw))
	for i, r := range raw {
		if err := unmarshal([]byte(r), &entries[i]); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry: %w", err)
		}
	}
	return doc.ledger(entries), nil
}

func (x *RedisIndex) InvalidateFile(ctx context.Context, fileID uuid.UUID) error {
	return x.rdb.Del(ctx, fileKey(fileID), fileVersionsKey(fileID)).Err()
}

func (x *RedisIndex) InvalidateLedger(ctx context.Context, datasetID uuid.UUID) error {
	return x.rdb.Del(ctx, ledgerKey(datasetID), ledgerEntriesKey(datasetID)).Err()
}

func (x *RedisIndex) replace(ctx context.Context, key, listKey string, meta []byte, list []interface{}) error {
	_, err := x.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, listKey)
		if len(list) > 0 {
			pipe.RPush(ctx, listKey, list...)
		}
		pipe.HSet(ctx, key, metaField, meta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	return nil
}

// appendEntry дописывает элемент только в существующий документ.
// WATCH на ключе шапки защищает от гонки с Invalidate.
func (x *RedisIndex) appendEntry(ctx context.Context, key, listKey string, meta, entry []byte) error {
	err := x.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrMiss
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, listKey, entry)
			pipe.HSet(ctx, key, metaField, meta)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, ErrMiss) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("failed to append to document %s: %w", key, err)
	}
	return nil
}

func (x *RedisIndex) load(ctx context.Context, key, listKey string, doc any) ([]string, error) {
	meta, err := x.rdb.HGet(ctx, key, metaField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", key, err)
	}
	if err := unmarshal(meta, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", key, err)
	}

	list, err := x.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read document list %s: %w", listKey, err)
	}
	return list, nil
}
