// Package sessionstore persists the conversation forest as nested
// directories: one directory per conversation, named by its id, nested under
// its parent's directory, each holding a single session.json document.
//
// The store keeps no in-memory state. A save is a full-document overwrite,
// so two concurrent saves of the same conversation race and the last writer
// wins; callers hold their own copy and re-save explicitly.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/deepdive-backend/internal/domain/chat"
	pkgerrors "github.com/yungbote/deepdive-backend/internal/pkg/errors"
	"github.com/yungbote/deepdive-backend/internal/platform/logger"
)

const docFileName = "session.json"

type Store struct {
	root string
	log  *logger.Logger
}

func New(root string, log *logger.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("sessionstore: root dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sessionstore: create root %s: %w", root, err)
	}
	return &Store{root: root, log: log.With("component", "SessionStore")}, nil
}

func (s *Store) Root() string { return s.root }

// FindPath locates the directory of the conversation with the given id.
// Children are nested inside their parents, so the lookup walks the whole
// tree. Returns ErrNotFound when no directory matches.
func (s *Store) FindPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("session id required: %w", pkgerrors.ErrInvalidArgument)
	}
	var found string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries must not abort the whole search.
			s.log.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() || path == s.root {
			return nil
		}
		if d.Name() == id {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", s.root, err)
	}
	if found == "" {
		return "", fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	return found, nil
}

// Get reads a single conversation document by id.
func (s *Store) Get(id string) (*chat.Conversation, error) {
	dir, err := s.FindPath(id)
	if err != nil {
		return nil, err
	}
	return readDoc(filepath.Join(dir, docFileName))
}

// ListAll collects every persisted conversation across the whole tree.
// Traversal order is parent-before-children as a side effect of the walk,
// not a contract. A malformed document is logged and skipped; one corrupt
// node must not abort the listing.
func (s *Store) ListAll() ([]*chat.Conversation, error) {
	out := []*chat.Conversation{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.log.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() || d.Name() != docFileName {
			return nil
		}
		conv, err := readDoc(path)
		if err != nil {
			s.log.Warn("skipping corrupt session document", "path", path, "error", err)
			return nil
		}
		out = append(out, conv)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return out, nil
}

// Save upserts a conversation document. The target directory is the storage
// root for roots, or the parent's directory otherwise; resolving a set but
// unknown ParentID fails with ErrNotFound and writes nothing. Directory
// creation is idempotent and the document is always fully overwritten;
// create and update are deliberately the same operation.
func (s *Store) Save(conv *chat.Conversation) (string, error) {
	if conv == nil || strings.TrimSpace(conv.ID) == "" {
		return "", fmt.Errorf("conversation id required: %w", pkgerrors.ErrInvalidArgument)
	}
	parentDir := s.root
	if conv.ParentID != "" {
		p, err := s.FindPath(conv.ParentID)
		if err != nil {
			return "", fmt.Errorf("resolve parent %s: %w", conv.ParentID, err)
		}
		parentDir = p
	}
	dir := filepath.Join(parentDir, conv.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", conv.ID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, docFileName), raw, 0o644); err != nil {
		return "", fmt.Errorf("write session %s: %w", conv.ID, err)
	}
	return dir, nil
}

// Delete removes a conversation and, because children are nested inside it,
// its entire subtree.
func (s *Store) Delete(id string) error {
	dir, err := s.FindPath(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func readDoc(path string) (*chat.Conversation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var conv chat.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if strings.TrimSpace(conv.ID) == "" {
		return nil, fmt.Errorf("decode %s: missing id", path)
	}
	return &conv, nil
}
