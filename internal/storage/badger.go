package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// BadgerConfig configures the embedded key-value backend.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// Key layout, with every owner and id path-escaped so "/" only separates
// components:
//
//	owner/<id>                    -> owner id of a note
//	note/<owner>/<id>             -> Note JSON
//	ann/<kind>/<id>               -> annotation JSON
//	idx/<nodeId>/<kind>/<id>      -> empty, lists a note's annotations
const (
	ownerPrefix = "owner/"
	notePrefix  = "note/"
	annPrefix   = "ann/"
	idxPrefix   = "idx/"
)

func seg(s string) string {
	return url.PathEscape(s)
}

func ownerKey(id string) []byte {
	return []byte(ownerPrefix + seg(id))
}

func notesOf(owner string) string {
	return notePrefix + seg(owner) + "/"
}

func noteKey(owner, id string) []byte {
	return []byte(notesOf(owner) + seg(id))
}

func annKey(k models.Kind, id string) []byte {
	return []byte(annPrefix + string(k) + "/" + seg(id))
}

func indexOf(nodeID string) string {
	return idxPrefix + seg(nodeID) + "/"
}

func idxKey(nodeID string, k models.Kind, id string) []byte {
	return []byte(indexOf(nodeID) + string(k) + "/" + seg(id))
}

// BadgerStorage keeps notes and annotations in an embedded BadgerDB.
type BadgerStorage struct {
	db     *badger.DB
	logger *zap.Logger
	clock  monotonic

	stop chan struct{}
	done sync.WaitGroup
}

// zapBadgerLogger adapts zap to badger's Logger interface.
type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l zapBadgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l zapBadgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l zapBadgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }

func NewBadgerStorage(config BadgerConfig, logger *zap.Logger) (*BadgerStorage, error) {
	if !config.InMemory && config.Path == "" {
		return nil, errors.New("badger path is required for persistent storage")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.Path, 0750); err != nil {
			return nil, fmt.Errorf("error creating badger directory %s: %w", config.Path, err)
		}
		opts = badger.DefaultOptions(config.Path)
	}
	opts = opts.
		WithSyncWrites(config.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(zapBadgerLogger{s: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger database: %w", err)
	}

	s := &BadgerStorage{db: db, logger: logger, stop: make(chan struct{})}
	if config.GCInterval > 0 && !config.InMemory {
		s.done.Add(1)
		go s.runGC(config.GCInterval, config.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStorage) runGC(interval time.Duration, ratio float64) {
	defer s.done.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite just means nothing was worth collecting.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("Badger value log GC failed", zap.Error(err))
			}
		}
	}
}

func badgerError(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnauthenticated):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", op, err, models.ErrPersistence)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (s *BadgerStorage) getNote(txn *badger.Txn, ownerID, id string) (models.Note, error) {
	var n models.Note
	if err := getJSON(txn, noteKey(ownerID, id), &n); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return n, fmt.Errorf("note %q: %w", id, models.ErrNotFound)
		}
		return n, err
	}
	return n, nil
}

func (s *BadgerStorage) ownedNotes(txn *badger.Txn, ownerID string) ([]models.Note, error) {
	notes := make([]models.Note, 0)
	prefix := []byte(notesOf(ownerID))
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var n models.Note
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		}); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Note methods
func (s *BadgerStorage) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	var notes []models.Note
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		notes, err = s.ownedNotes(txn, ownerID)
		return err
	})
	if err != nil {
		return nil, badgerError("error listing notes", err)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *BadgerStorage) GetNote(ctx context.Context, ownerID, id string) (*models.Note, error) {
	var n models.Note
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = s.getNote(txn, ownerID, id)
		return err
	})
	if err != nil {
		return nil, badgerError("error getting note", err)
	}
	return &n, nil
}

func (s *BadgerStorage) CreateNote(ctx context.Context, note *models.Note) error {
	if note.OwnerID == "" {
		return fmt.Errorf("note owner: %w", models.ErrUnauthenticated)
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Title == "" {
		note.Title = models.DefaultNoteTitle
	}
	if !note.HasParent() {
		note.ParentID = nil
	}

	created := *note
	created.Content = ""
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(ownerKey(created.ID)); err == nil {
			return fmt.Errorf("note %q already exists: %w", created.ID, models.ErrValidation)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if created.HasParent() {
			if _, err := s.getNote(txn, created.OwnerID, *created.ParentID); err != nil {
				return err
			}
		}
		now := s.clock.now()
		created.CreatedAt, created.UpdatedAt = now, now
		if err := txn.Set(ownerKey(created.ID), []byte(created.OwnerID)); err != nil {
			return err
		}
		return setJSON(txn, noteKey(created.OwnerID, created.ID), created)
	})
	if err != nil {
		return badgerError("error creating note", err)
	}
	*note = created
	return nil
}

func (s *BadgerStorage) UpdateNote(ctx context.Context, ownerID, id string, upd models.NoteUpdate) (*models.Note, error) {
	var n models.Note
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if n, err = s.getNote(txn, ownerID, id); err != nil {
			return err
		}
		upd.Apply(&n)
		n.UpdatedAt = s.clock.now()
		return setJSON(txn, noteKey(ownerID, id), n)
	})
	if err != nil {
		return nil, badgerError("error updating note", err)
	}
	return &n, nil
}

func (s *BadgerStorage) MoveNote(ctx context.Context, ownerID, id string, parentID *string) (*models.Note, error) {
	var n models.Note
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if n, err = s.getNote(txn, ownerID, id); err != nil {
			return err
		}
		if parentID == nil || *parentID == "" {
			n.ParentID = nil
		} else {
			if _, err := s.getNote(txn, ownerID, *parentID); err != nil {
				return fmt.Errorf("parent: %w", err)
			}
			notes, err := s.ownedNotes(txn, ownerID)
			if err != nil {
				return err
			}
			if contains(subtree(notes, id), *parentID) {
				return fmt.Errorf("cannot move %q under its own subtree: %w", id, models.ErrValidation)
			}
			n.ParentID = models.StringPtr(*parentID)
		}
		n.UpdatedAt = s.clock.now()
		return setJSON(txn, noteKey(ownerID, id), n)
	})
	if err != nil {
		return nil, badgerError("error moving note", err)
	}
	return &n, nil
}

// DeleteNote removes the subtree and its annotations in one transaction.
func (s *BadgerStorage) DeleteNote(ctx context.Context, ownerID, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := s.getNote(txn, ownerID, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		notes, err := s.ownedNotes(txn, ownerID)
		if err != nil {
			return err
		}
		for _, nid := range subtree(notes, id) {
			keys, err := s.indexKeys(txn, nid)
			if err != nil {
				return err
			}
			for _, k := range keys {
				kind, aid := parseIdxKey(nid, k)
				if err := txn.Delete(annKey(kind, aid)); err != nil {
					return err
				}
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			if err := txn.Delete(noteKey(ownerID, nid)); err != nil {
				return err
			}
			if err := txn.Delete(ownerKey(nid)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return badgerError("error deleting note", err)
	}
	return nil
}

func (s *BadgerStorage) indexKeys(txn *badger.Txn, nodeID string) ([][]byte, error) {
	prefix := []byte(indexOf(nodeID))
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func parseIdxKey(nodeID string, key []byte) (models.Kind, string) {
	rest := strings.TrimPrefix(string(key), indexOf(nodeID))
	kind, escaped, _ := strings.Cut(rest, "/")
	id, err := url.PathUnescape(escaped)
	if err != nil {
		id = escaped
	}
	return models.Kind(kind), id
}

func decodeAnnotation(kind models.Kind, data []byte) (models.Annotation, error) {
	switch kind {
	case models.KindQuestion:
		var q models.Question
		err := json.Unmarshal(data, &q)
		return q, err
	case models.KindImportant:
		var i models.Important
		err := json.Unmarshal(data, &i)
		return i, err
	case models.KindVocabulary:
		var v models.Vocabulary
		err := json.Unmarshal(data, &v)
		return v, err
	}
	return nil, fmt.Errorf("unknown annotation kind %q: %w", kind, models.ErrValidation)
}

func (s *BadgerStorage) getAnnotation(txn *badger.Txn, kind models.Kind, id string) (models.Annotation, error) {
	item, err := txn.Get(annKey(kind, id))
	if err != nil {
		return nil, err
	}
	var a models.Annotation
	err = item.Value(func(val []byte) error {
		a, err = decodeAnnotation(kind, val)
		return err
	})
	return a, err
}

// ownedAnnotation loads a row and checks that its note belongs to ownerID.
func (s *BadgerStorage) ownedAnnotation(txn *badger.Txn, ownerID string, kind models.Kind, id string) (models.Annotation, error) {
	a, err := s.getAnnotation(txn, kind, id)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s %q: %w", kind, id, models.ErrNotFound)
		}
		return nil, err
	}
	if _, err := s.getNote(txn, ownerID, a.NoteID()); err != nil {
		return nil, fmt.Errorf("%s %q: %w", kind, id, models.ErrNotFound)
	}
	return a, nil
}

// Annotation methods
func (s *BadgerStorage) ListAnnotations(ctx context.Context, ownerID string, kind models.Kind, nodeID string) ([]models.Annotation, error) {
	rows := make([]models.Annotation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := s.getNote(txn, ownerID, nodeID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		prefix := []byte(indexOf(nodeID) + string(kind) + "/")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			_, id := parseIdxKey(nodeID, it.Item().Key())
			a, err := s.getAnnotation(txn, kind, id)
			if err != nil {
				return err
			}
			rows = append(rows, a)
		}
		return nil
	})
	if err != nil {
		return nil, badgerError(fmt.Sprintf("error listing %s", kind), err)
	}
	sortAnnotations(rows)
	return rows, nil
}

func (s *BadgerStorage) CreateAnnotation(ctx context.Context, ownerID string, a models.Annotation) (models.Annotation, error) {
	if a == nil {
		return nil, fmt.Errorf("missing annotation: %w", models.ErrValidation)
	}
	if _, ok := annotationTables[a.Kind()]; !ok {
		return nil, fmt.Errorf("unknown annotation kind %q: %w", a.Kind(), models.ErrValidation)
	}
	var stored models.Annotation
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := s.getNote(txn, ownerID, a.NoteID()); err != nil {
			return err
		}
		if _, err := txn.Get(annKey(a.Kind(), a.AnnotationID())); err == nil {
			// another owner's row answers like a missing note
			if _, err := s.ownedAnnotation(txn, ownerID, a.Kind(), a.AnnotationID()); errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("note %q: %w", a.NoteID(), models.ErrNotFound)
			} else if err != nil {
				return err
			}
			return fmt.Errorf("%s %q already exists: %w", a.Kind(), a.AnnotationID(), models.ErrValidation)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored = stampAnnotation(a, s.clock.now())
		if err := setJSON(txn, annKey(stored.Kind(), stored.AnnotationID()), stored); err != nil {
			return err
		}
		return txn.Set(idxKey(stored.NoteID(), stored.Kind(), stored.AnnotationID()), nil)
	})
	if err != nil {
		return nil, badgerError(fmt.Sprintf("error creating %s", a.Kind()), err)
	}
	return stored, nil
}

func (s *BadgerStorage) UpdateQuestion(ctx context.Context, ownerID, id string, upd models.QuestionUpdate) (*models.Question, error) {
	var q models.Question
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := s.ownedAnnotation(txn, ownerID, models.KindQuestion, id)
		if err != nil {
			return err
		}
		q = a.(models.Question)
		upd.Apply(&q)
		q.UpdatedAt = s.clock.now()
		return setJSON(txn, annKey(models.KindQuestion, id), q)
	})
	if err != nil {
		return nil, badgerError("error updating question", err)
	}
	return &q, nil
}

func (s *BadgerStorage) SetVocabularyDefinition(ctx context.Context, ownerID, id, definition string) (*models.Vocabulary, error) {
	var v models.Vocabulary
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := s.ownedAnnotation(txn, ownerID, models.KindVocabulary, id)
		if err != nil {
			return err
		}
		v = a.(models.Vocabulary)
		v.Definition = models.StringPtr(definition)
		return setJSON(txn, annKey(models.KindVocabulary, id), v)
	})
	if err != nil {
		return nil, badgerError("error defining vocabulary", err)
	}
	return &v, nil
}

func (s *BadgerStorage) DeleteAnnotation(ctx context.Context, ownerID string, kind models.Kind, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := s.ownedAnnotation(txn, ownerID, kind, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Delete(annKey(kind, id)); err != nil {
			return err
		}
		return txn.Delete(idxKey(a.NoteID(), kind, id))
	})
	if err != nil {
		return badgerError(fmt.Sprintf("error deleting %s", kind), err)
	}
	return nil
}

func (s *BadgerStorage) Close() error {
	close(s.stop)
	s.done.Wait()
	return s.db.Close()
}
