package buildsys

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(ScriptCmd{})
	gob.Register(TaskRefCmd{})
}

// ErrCacheStale is returned by ReadCache if the cache was built from a different script or option set
var ErrCacheStale = eris.New("task cache is stale")

type cacheContent struct {
	Key    uint64
	Script Script
}

// CacheKey hashes the script content together with the option values
func CacheKey(script []byte, options map[string]string) uint64 {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)

	digest := xxhash.New()
	_, _ = digest.Write(script)
	for _, name := range names {
		_, _ = digest.WriteString(name + "\x00" + options[name] + "\x00")
	}
	return digest.Sum64()
}

// WriteCache stores an evaluated script for the given key
func WriteCache(file string, key uint64, script *Script) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o770); err != nil {
		return eris.Wrapf(err, "failed to create cache directory for %s", file)
	}

	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", file)
	}
	defer handle.Close()

	err = gob.NewEncoder(handle).Encode(cacheContent{Key: key, Script: *script})
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", file)
	}

	return nil
}

// ReadCache loads a cached script. ErrCacheStale is returned if key doesn't match.
func ReadCache(file string, key uint64) (*Script, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	var content cacheContent
	if err = gob.NewDecoder(handle).Decode(&content); err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", file)
	}

	if content.Key != key {
		return nil, ErrCacheStale
	}

	return &content.Script, nil
}

// LoadCachedScript returns the cached script if it's still valid and otherwise evaluates the script and
// updates the cache. An empty cacheFile disables caching.
func LoadCachedScript(ctx context.Context, filename, projectRoot, cacheFile string, options map[string]string) (*Script, error) {
	if cacheFile == "" {
		return LoadScript(ctx, filename, projectRoot, options)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}
	key := CacheKey(content, options)

	script, err := ReadCache(cacheFile, key)
	if err == nil {
		log(ctx).Debug().Str("path", cacheFile).Msg("using cached tasks")
		return script, nil
	}

	if !eris.Is(err, os.ErrNotExist) && !eris.Is(err, ErrCacheStale) {
		log(ctx).Warn().Err(err).Msg("ignoring unreadable task cache")
	}

	script, err = LoadScript(ctx, filename, projectRoot, options)
	if err != nil {
		return nil, err
	}

	if err = WriteCache(cacheFile, key, script); err != nil {
		log(ctx).Warn().Err(err).Msg("failed to update the task cache")
	}
	return script, nil
}
