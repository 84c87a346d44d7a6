// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package recipe

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// FileStoreConfig configures a FileStore. Root and Logger are
// required.
type FileStoreConfig struct {
	// Root is the recipe partition directory. Each device type gets
	// its own subdirectory, created on first save.
	Root string

	// Logger receives structured log output.
	Logger *slog.Logger
}

// FileStore owns the on-disk recipe partition: one directory per
// device type, one JSON file per recipe. Files are read tolerantly
// (comments and trailing commas survive hand edits) and written
// atomically. A FileStore is safe for concurrent use.
type FileStore struct {
	root   string
	logger *slog.Logger

	// mu serializes saves so filename dedupe and sequential id
	// assignment see a stable directory.
	mu sync.Mutex
}

// NewFileStore creates a FileStore over the given partition root.
func NewFileStore(config FileStoreConfig) *FileStore {
	if config.Root == "" {
		panic("recipe.NewFileStore: Config.Root is required")
	}
	if config.Logger == nil {
		panic("recipe.NewFileStore: Config.Logger is required")
	}
	return &FileStore{
		root:   config.Root,
		logger: config.Logger.With("component", "recipestore"),
	}
}

// SaveOptions controls where Save writes.
type SaveOptions struct {
	// Filename names the target file explicitly (uploads). When
	// empty, the filename derives from the recipe name and collides
	// into a "_n" counter suffix instead of erroring.
	Filename string

	// Overwrite replaces an existing file. Without it, an explicit
	// Filename that already exists is a ConflictError.
	Overwrite bool
}

// SaveResult reports where a recipe landed.
type SaveResult struct {
	// Path is the full filesystem path of the written file.
	Path string `json:"path"`

	// Filename is the file's base name within the device partition.
	Filename string `json:"filename"`

	// Digest is the BLAKE3 hex digest of the written bytes.
	Digest string `json:"digest"`
}

// List returns every readable recipe in a device's partition, sorted
// by name. Unreadable files are logged and skipped; one corrupt
// hand-edited file must not hide the rest of the collection.
func (s *FileStore) List(device DeviceType) ([]*Recipe, error) {
	entries, err := os.ReadDir(s.deviceDir(device))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading recipe partition: %w", err)
	}

	var recipes []*Recipe
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		recipe, err := s.readFile(device, filepath.Join(s.deviceDir(device), entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable recipe file",
				"device", device,
				"file", entry.Name(),
				"error", err,
			)
			continue
		}
		recipes = append(recipes, recipe)
	}
	slices.SortFunc(recipes, func(a, b *Recipe) int {
		return strings.Compare(a.Name, b.Name)
	})
	return recipes, nil
}

// Get returns the recipe with the given id from a device's partition.
func (s *FileStore) Get(device DeviceType, id string) (*Recipe, error) {
	recipes, err := s.List(device)
	if err != nil {
		return nil, err
	}
	for _, recipe := range recipes {
		if recipe.ID == id {
			return recipe, nil
		}
	}
	return nil, &NotFoundError{Device: device, ID: id}
}

// Save persists a recipe into its device's partition. A recipe with
// no id is assigned one first: hex from the rules table, or the next
// sequential integer for zseries. The recipe's ID field is updated in
// place. The write is atomic; readers never see a partial file.
func (s *FileStore) Save(recipe *Recipe, options SaveOptions) (*SaveResult, error) {
	deviceRule, ok := deviceRules[recipe.DeviceType]
	if !ok {
		return nil, fmt.Errorf("unknown device type %q", recipe.DeviceType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	directory := s.deviceDir(recipe.DeviceType)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating recipe partition: %w", err)
	}

	if recipe.ID == "" {
		if deviceRule.newID != nil {
			recipe.ID = deviceRule.newID()
		} else {
			id, err := s.nextSequentialID(recipe.DeviceType)
			if err != nil {
				return nil, err
			}
			recipe.ID = id
		}
	}

	filename, err := s.resolveFilename(directory, recipe.Name, options)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(directory, filename)

	data, err := json.MarshalIndent(recipe, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling recipe: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	digest := blake3.Sum256(data)
	s.logger.Info("saved recipe",
		"device", recipe.DeviceType,
		"id", recipe.ID,
		"file", filename,
	)
	return &SaveResult{
		Path:     path,
		Filename: filename,
		Digest:   hex.EncodeToString(digest[:]),
	}, nil
}

func (s *FileStore) deviceDir(device DeviceType) string {
	return filepath.Join(s.root, string(device))
}

func (s *FileStore) readFile(device DeviceType, path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recipe Recipe
	if err := json.Unmarshal(jsonc.ToJSON(data), &recipe); err != nil {
		return nil, fmt.Errorf("parsing recipe: %w", err)
	}
	// Hand-dropped files often omit the device type; the partition
	// directory is authoritative.
	recipe.DeviceType = device
	return &recipe, nil
}

// resolveFilename picks the target base name for a save. Derived
// names are sanitized (spaces to underscores, apostrophes stripped)
// and deduped with a "_n" counter; explicit names collide instead.
func (s *FileStore) resolveFilename(directory, recipeName string, options SaveOptions) (string, error) {
	if options.Filename != "" {
		// Strip any path component a client smuggled in.
		filename := filepath.Base(options.Filename)
		if !strings.HasSuffix(filename, ".json") {
			filename += ".json"
		}
		if !options.Overwrite {
			if _, err := os.Stat(filepath.Join(directory, filename)); err == nil {
				return "", &ConflictError{Filename: filename}
			}
		}
		return filename, nil
	}

	base := strings.ReplaceAll(recipeName, " ", "_")
	base = strings.ReplaceAll(base, "'", "")
	if base == "" {
		base = "recipe"
	}

	filename := base + ".json"
	if options.Overwrite {
		return filename, nil
	}
	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(directory, filename)); err != nil {
			return filename, nil
		}
		filename = fmt.Sprintf("%s_%d.json", base, counter)
	}
}

// nextSequentialID returns max existing integer id + 1, starting at 1
// for an empty partition. Only zseries uses sequential ids.
func (s *FileStore) nextSequentialID(device DeviceType) (string, error) {
	recipes, err := s.List(device)
	if err != nil {
		return "", err
	}
	highest := 0
	for _, recipe := range recipes {
		if id, err := strconv.Atoi(recipe.ID); err == nil && id > highest {
			highest = id
		}
	}
	return strconv.Itoa(highest + 1), nil
}

// writeFileAtomic writes data to a temporary file in the target
// directory, syncs it, and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary recipe file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary recipe file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary recipe file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary recipe file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming recipe file into place: %w", err)
	}
	return nil
}
