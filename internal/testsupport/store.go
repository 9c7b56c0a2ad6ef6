package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"queuemigrate/internal/storage"
)

// Store is an in-memory storage.Client with failure injection
type Store struct {
	mu       sync.Mutex
	objects  map[string]map[string]storedObject
	failGet  map[string]int
	failPut  map[string]int
	puts     map[string]int
	listErr  error
	errAfter int

	// BeforePut, when set, runs before every put attempt
	BeforePut func(key string)

	calls atomic.Int64
}

type storedObject struct {
	data        []byte
	contentType string
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{
		objects: make(map[string]map[string]storedObject),
		failGet: make(map[string]int),
		failPut: make(map[string]int),
		puts:    make(map[string]int),
	}
}

// Seed stores an object without counting it as a call
func (s *Store) Seed(bucket, key, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string]storedObject)
	}
	s.objects[bucket][key] = storedObject{data: data, contentType: contentType}
}

// FailGet makes the next n gets of key fail
func (s *Store) FailGet(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet[key] = n
}

// FailPut makes the next n puts of key fail
func (s *Store) FailPut(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[key] = n
}

// FailListAfter makes listings fail with err after n objects
func (s *Store) FailListAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errAfter = n
	s.listErr = err
}

// Object returns a stored object
func (s *Store) Object(bucket, key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket][key]
	return obj.data, obj.contentType, ok
}

// Keys returns the sorted keys of a bucket
func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects[bucket]))
	for k := range s.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SuccessfulPuts returns how many times key was written successfully
func (s *Store) SuccessfulPuts(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[key]
}

// Calls returns the number of get, put and list calls made
func (s *Store) Calls() int64 {
	return s.calls.Load()
}

// GetObject implements storage.Source
func (s *Store) GetObject(_ context.Context, bucket, key string) (storage.Object, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failGet[key] > 0 {
		s.failGet[key]--
		return nil, fmt.Errorf("get %s: connection reset", key)
	}

	obj, ok := s.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: no such key", bucket, key)
	}

	data := append([]byte(nil), obj.data...)
	return &memObject{
		Reader: bytes.NewReader(data),
		info:   storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: obj.contentType},
	}, nil
}

// PutObject implements storage.Destination
func (s *Store) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) error {
	s.calls.Add(1)
	if s.BeforePut != nil {
		s.BeforePut(key)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("put %s: read %d bytes, want %d", key, len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut[key] > 0 {
		s.failPut[key]--
		return fmt.Errorf("put %s: 503 service unavailable", key)
	}

	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string]storedObject)
	}
	s.objects[bucket][key] = storedObject{data: data, contentType: opts.ContentType}
	s.puts[key]++
	return nil
}

// ListObjects implements storage.Source, emitting keys in sorted order
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) (<-chan storage.ObjectInfo, <-chan error) {
	s.calls.Add(1)

	s.mu.Lock()
	var infos []storage.ObjectInfo
	for key, obj := range s.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(obj.data))})
		}
	}
	listErr, errAfter := s.listErr, s.errAfter
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	objCh := make(chan storage.ObjectInfo)
	errCh := make(chan error, 1)

	go func() {
		defer close(objCh)
		defer close(errCh)

		for i, info := range infos {
			if listErr != nil && i == errAfter {
				errCh <- listErr
				return
			}
			select {
			case objCh <- info:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if listErr != nil && errAfter >= len(infos) {
			errCh <- listErr
		}
	}()

	return objCh, errCh
}

type memObject struct {
	*bytes.Reader
	info storage.ObjectInfo
}

func (o *memObject) Close() error { return nil }

func (o *memObject) Stat() (storage.ObjectInfo, error) { return o.info, nil }
