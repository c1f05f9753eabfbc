package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkdrop/internal/domain"
)

const maxTxnRetries = 3

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
	now func() time.Time
}

// Option customises a BadgerRepository.
type Option func(*BadgerRepository)

// WithClock replaces time.Now for CreatedAt and WatchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *BadgerRepository) { r.now = now }
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger, opts ...Option) (*BadgerRepository, error) {
	badgerOpts := badger.DefaultOptions(dbPath)
	badgerOpts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	repo := &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// Key layout:
//
//	user:{id}                          -> User JSON
//	user_slug:{slug}                   -> user id
//	link:{id}                          -> Link JSON
//	sent:{sender}:{created nanos}:{id} -> empty, ordered by creation time
//	inbox:{recipient}:{id}             -> empty
func userKey(id string) []byte       { return []byte("user:" + id) }
func userSlugKey(slug string) []byte { return []byte("user_slug:" + slug) }
func linkKey(id string) []byte       { return []byte("link:" + id) }
func inboxPrefix(recipientID string) []byte {
	return []byte("inbox:" + recipientID + ":")
}

func sentPrefix(senderID string) []byte {
	return []byte("sent:" + senderID + ":")
}

// sentKey sorts by creation time within a sender because the timestamp is big-endian.
func sentKey(senderID string, created time.Time, linkID string) []byte {
	key := sentPrefix(senderID)
	key = binary.BigEndian.AppendUint64(key, uint64(created.UnixNano()))
	key = append(key, ':')
	return append(key, linkID...)
}

func sentSeekKey(senderID string, since time.Time) []byte {
	return binary.BigEndian.AppendUint64(sentPrefix(senderID), uint64(since.UnixNano()))
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.SetEntry(badger.NewEntry(key, b))
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (r *BadgerRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.WithField("attempt", i+1).Debug("BadgerDB transaction conflict, retrying")
	}
	return err
}

// ListUsers returns every user ordered by slug.
func (r *BadgerRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var users []domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u domain.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal user for key %s: %w", it.Item().Key(), err)
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to list users")
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Slug < users[j].Slug })
	return users, nil
}

// GetUserBySlug looks a user up by its unique slug.
func (r *BadgerRepository) GetUserBySlug(ctx context.Context, slug string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}

	var u domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userSlugKey(slug))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(id)), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, slug)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user %s: %w", slug, err)
	}
	return u, nil
}

// GetUser looks a user up by id.
func (r *BadgerRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}

	var u domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

// CreateUser stores a new user. It fails with domain.ErrSlugTaken when the slug is in use.
func (r *BadgerRepository) CreateUser(ctx context.Context, slug, name string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}

	u := domain.User{ID: uuid.NewString(), Slug: slug, Name: name}
	err := r.update(func(txn *badger.Txn) error {
		_, err := txn.Get(userSlugKey(slug))
		if err == nil {
			return domain.ErrSlugTaken
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(userSlugKey(slug), []byte(u.ID)); err != nil {
			return err
		}
		return setJSON(txn, userKey(u.ID), u)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to create user %s: %w", slug, err)
	}

	r.log.WithFields(logrus.Fields{"user_id": u.ID, "slug": slug}).Info("User created")
	return u, nil
}

// UserSeed describes a user that should exist at startup.
type UserSeed struct {
	Slug string
	Name string
}

// SeedUsers creates any seeds whose slug does not exist yet and returns how many were created.
func (r *BadgerRepository) SeedUsers(ctx context.Context, seeds []UserSeed) (int, error) {
	created := 0
	for _, s := range seeds {
		_, err := r.CreateUser(ctx, s.Slug, s.Name)
		if errors.Is(err, domain.ErrSlugTaken) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// CountSubmissionsSince counts the sender's links created at or after since.
// Only keys are scanned; link bodies are not read.
func (r *BadgerRepository) CountSubmissionsSince(ctx context.Context, senderID string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := sentPrefix(senderID)
		for it.Seek(sentSeekKey(senderID, since)); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("sender_id", senderID).Error("Failed to count submissions")
		return 0, fmt.Errorf("failed to count submissions for %s: %w", senderID, err)
	}
	return count, nil
}

// InsertLink stores a new unwatched link and its sender/recipient index entries,
// and stamps the sender's advisory LastSubmittedAt, in one transaction.
func (r *BadgerRepository) InsertLink(ctx context.Context, nl NewLink) (domain.Link, error) {
	if err := ctx.Err(); err != nil {
		return domain.Link{}, err
	}

	link := domain.Link{
		ID:          uuid.NewString(),
		SenderID:    nl.SenderID,
		RecipientID: nl.RecipientID,
		URL:         nl.URL,
		Title:       nl.Title,
		Thumbnail:   nl.Thumbnail,
		PlatformTag: nl.PlatformTag,
		CustomTags:  nl.CustomTags,
		Note:        nl.Note,
		CreatedAt:   r.now().UTC(),
	}
	if link.CustomTags == nil {
		link.CustomTags = []string{}
	}

	log := r.log.WithFields(logrus.Fields{
		"link_id":      link.ID,
		"sender_id":    link.SenderID,
		"recipient_id": link.RecipientID,
		"url":          link.URL,
	})

	err := r.update(func(txn *badger.Txn) error {
		var sender domain.User
		if err := getJSON(txn, userKey(link.SenderID), &sender); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("sender %w", domain.ErrUserNotFound)
			}
			return err
		}
		if _, err := txn.Get(userKey(link.RecipientID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("recipient %w", domain.ErrUserNotFound)
			}
			return err
		}

		if err := setJSON(txn, linkKey(link.ID), link); err != nil {
			return err
		}
		if err := txn.Set(sentKey(link.SenderID, link.CreatedAt, link.ID), []byte{}); err != nil {
			return err
		}
		if err := txn.Set(append(inboxPrefix(link.RecipientID), link.ID...), []byte{}); err != nil {
			return err
		}

		created := link.CreatedAt
		sender.LastSubmittedAt = &created
		return setJSON(txn, userKey(sender.ID), sender)
	})
	if err != nil {
		log.WithError(err).Error("Failed to insert link")
		return domain.Link{}, fmt.Errorf("failed to insert link: %w", err)
	}

	log.Info("Link saved successfully")
	return link, nil
}

// GetLink loads a single link.
func (r *BadgerRepository) GetLink(ctx context.Context, id string) (domain.Link, error) {
	if err := ctx.Err(); err != nil {
		return domain.Link{}, err
	}

	var link domain.Link
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, linkKey(id), &link)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Link{}, fmt.Errorf("%w: %s", domain.ErrLinkNotFound, id)
	}
	if err != nil {
		return domain.Link{}, fmt.Errorf("failed to get link %s: %w", id, err)
	}
	return link, nil
}

// ListInbox returns the recipient's unwatched links, newest first.
func (r *BadgerRepository) ListInbox(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error) {
	links, err := r.listReceived(ctx, recipientID, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

// ListArchive returns the recipient's watched links, most recently watched first.
func (r *BadgerRepository) ListArchive(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error) {
	links, err := r.listReceived(ctx, recipientID, true)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].WatchedAt.After(*links[j].WatchedAt)
	})
	return links, nil
}

func (r *BadgerRepository) listReceived(ctx context.Context, recipientID string, watched bool) ([]domain.LinkWithSender, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := r.log.WithFields(logrus.Fields{"recipient_id": recipientID, "watched": watched})

	links := []domain.LinkWithSender{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		senders := map[string]domain.User{}
		prefix := inboxPrefix(recipientID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			linkID := string(it.Item().Key()[len(prefix):])

			var link domain.Link
			if err := getJSON(txn, linkKey(linkID), &link); err != nil {
				return fmt.Errorf("failed to load link %s: %w", linkID, err)
			}
			if link.Watched != watched {
				continue
			}

			sender, ok := senders[link.SenderID]
			if !ok {
				if err := getJSON(txn, userKey(link.SenderID), &sender); err != nil {
					log.WithError(err).WithField("sender_id", link.SenderID).Warn("Sender missing for link")
				}
				senders[link.SenderID] = sender
			}
			links = append(links, domain.LinkWithSender{Link: link, Sender: sender})
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to list received links")
		return nil, fmt.Errorf("failed to list links for %s: %w", recipientID, err)
	}

	log.WithField("link_count", len(links)).Debug("Received links listed")
	return links, nil
}

// UpdateWatched marks the link watched at the current time. Links that are
// already watched are left untouched so WatchedAt keeps its first value.
func (r *BadgerRepository) UpdateWatched(ctx context.Context, linkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := r.log.WithField("link_id", linkID)

	changed := false
	err := r.update(func(txn *badger.Txn) error {
		var link domain.Link
		if err := getJSON(txn, linkKey(linkID), &link); err != nil {
			return err
		}
		changed = link.MarkWatched(r.now().UTC())
		if !changed {
			return nil
		}
		return setJSON(txn, linkKey(linkID), link)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrLinkNotFound, linkID)
	}
	if err != nil {
		log.WithError(err).Error("Failed to mark link watched")
		return fmt.Errorf("failed to mark link %s watched: %w", linkID, err)
	}

	if changed {
		log.Info("Link marked watched")
	} else {
		log.Debug("Link already watched")
	}
	return nil
}

// RunGC periodically reclaims value-log space until ctx is cancelled.
// A non-positive interval disables the loop.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.log.WithField("interval", interval).Warn("BadgerDB GC disabled: interval must be positive")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite):
				r.log.Debug("BadgerDB GC: No rewrite needed")
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			r.log.Info("Stopping BadgerDB GC routine")
			return
		}
	}
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
