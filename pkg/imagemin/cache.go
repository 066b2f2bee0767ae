package imagemin

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

var resultBucket = []byte("results")

// Cache remembers optimizer results by content hash so unchanged images aren't re-encoded on
// every build. It never changes the result, only how fast it's produced.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return nil, eris.Wrapf(err, "failed to create directory for %s", path)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open image cache %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize image cache")
	}

	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(profile string, data []byte) []byte {
	sum := sha256.Sum256(data)
	return append(sum[:], []byte(profile)...)
}

// Get returns the stored result for data optimized with profile.
func (c *Cache) Get(profile string, data []byte) ([]byte, bool) {
	var result []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(resultBucket).Get(cacheKey(profile, data))
		if item != nil {
			// bbolt's memory is only valid during the transaction
			result = append([]byte{}, item...)
		}
		return nil
	})

	return result, result != nil
}

// Put stores result for data optimized with profile.
func (c *Cache) Put(profile string, data, result []byte) error {
	return c.db.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket(resultBucket).Put(cacheKey(profile, data), result)
	})
}
