package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/harmony/runtime/harmony/canon"
	"goa.design/harmony/runtime/harmony/caseless"
	"goa.design/harmony/runtime/harmony/envelope"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
	"goa.design/harmony/runtime/harmony/session"
)

const (
	defaultScriptsCollection  = "harmony_scripts"
	defaultSessionsCollection = "harmony_sessions"
	defaultOpTimeout          = 5 * time.Second
	storeName                 = "harmony-mongo"
)

type (
	// Options configures the Mongo store.
	Options struct {
		Client             *mongodriver.Client
		Database           string
		ScriptsCollection  string
		SessionsCollection string
		Timeout            time.Duration
	}

	// Store implements session.ScriptStore, session.Store, and
	// session.IndexStore on MongoDB collections.
	Store struct {
		mongo    *mongodriver.Client
		scripts  *mongodriver.Collection
		sessions *mongodriver.Collection
		timeout  time.Duration
	}
)

var (
	_ session.ScriptStore = (*Store)(nil)
	_ session.Store       = (*Store)(nil)
	_ session.IndexStore  = (*Store)(nil)
	_ health.Pinger       = (*Store)(nil)
)

// New returns a Store backed by MongoDB and ensures its indexes.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	scriptsCollection := opts.ScriptsCollection
	if scriptsCollection == "" {
		scriptsCollection = defaultScriptsCollection
	}
	sessionsCollection := opts.SessionsCollection
	if sessionsCollection == "" {
		sessionsCollection = defaultSessionsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		mongo:    opts.Client,
		scripts:  db.Collection(scriptsCollection),
		sessions: db.Collection(sessionsCollection),
		timeout:  timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return storeName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// PutScript implements session.ScriptStore with replace semantics.
func (s *Store) PutScript(ctx context.Context, scriptID string, env *envelope.Envelope) error {
	if scriptID == "" {
		return errors.New("script id is required")
	}
	if env == nil {
		return errors.New("envelope is required")
	}
	raw, err := canon.MarshalEnvelope(env)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"script_id": scriptID}
	update := bson.M{
		"$set": bson.M{
			"script_id":  scriptID,
			"envelope":   string(raw),
			"updated_at": time.Now().UTC(),
		},
	}
	_, err = s.scripts.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// GetScript implements session.ScriptStore.
func (s *Store) GetScript(ctx context.Context, scriptID string) (*envelope.Envelope, error) {
	if scriptID == "" {
		return nil, errors.New("script id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc scriptDocument
	if err := s.scripts.FindOne(ctx, bson.M{"script_id": scriptID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, session.ErrScriptNotFound
		}
		return nil, err
	}
	return canon.UnmarshalEnvelope([]byte(doc.Envelope))
}

// DeleteScript implements session.ScriptStore. Deleting an unknown id is a
// no-op.
func (s *Store) DeleteScript(ctx context.Context, scriptID string) error {
	if scriptID == "" {
		return errors.New("script id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.scripts.DeleteOne(ctx, bson.M{"script_id": scriptID})
	return err
}

// SaveSession implements session.Store with replace semantics.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	doc := fromSession(sess)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": sess.ID}
	_, err := s.sessions.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

// LoadSession implements session.Store.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return doc.toSession(), nil
}

// DeleteSession implements session.Store.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.sessions.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// ListSessions implements session.IndexStore. Only the index projection is
// fetched.
func (s *Store) ListSessions(ctx context.Context, scriptID string) ([]session.IndexEntry, error) {
	filter := bson.M{}
	if scriptID != "" {
		filter["script_id"] = scriptID
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	projection := bson.M{"session_id": 1, "script_id": 1, "updated_at": 1}
	cur, err := s.sessions.Find(ctx, filter, options.Find().SetProjection(projection))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []session.IndexEntry
	for cur.Next(ctx) {
		var doc struct {
			SessionID string    `bson:"session_id"`
			ScriptID  string    `bson:"script_id"`
			UpdatedAt time.Time `bson:"updated_at"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, session.IndexEntry{
			SessionID: doc.SessionID,
			ScriptID:  doc.ScriptID,
			UpdatedAt: doc.UpdatedAt.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	scriptIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "script_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.scripts.Indexes().CreateOne(ctx, scriptIndex); err != nil {
		return err
	}
	sessionIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, sessionIndex); err != nil {
		return err
	}
	listIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "script_id", Value: 1},
			{Key: "updated_at", Value: -1},
		},
	}
	_, err := s.sessions.Indexes().CreateOne(ctx, listIndex)
	return err
}

type (
	scriptDocument struct {
		ScriptID  string    `bson:"script_id"`
		Envelope  string    `bson:"envelope"`
		UpdatedAt time.Time `bson:"updated_at"`
	}

	sessionDocument struct {
		SessionID      string                      `bson:"session_id"`
		ScriptID       string                      `bson:"script_id"`
		CurrentIndex   int                         `bson:"current_index"`
		Status         string                      `bson:"status"`
		CreatedAt      time.Time                   `bson:"created_at"`
		UpdatedAt      time.Time                   `bson:"updated_at"`
		Vars           map[string]any              `bson:"vars,omitempty"`
		Artifacts      map[string]artifactDocument `bson:"artifacts,omitempty"`
		History        []recordDocument            `bson:"history,omitempty"`
		Transcript     []chatEntryDocument         `bson:"transcript,omitempty"`
		Metadata       map[string]string           `bson:"metadata,omitempty"`
		ExecutionIndex map[string]int              `bson:"execution_index,omitempty"`
	}

	artifactDocument struct {
		Name        string    `bson:"name"`
		ContentType string    `bson:"content_type"`
		Content     any       `bson:"content,omitempty"`
		CreatedAt   time.Time `bson:"created_at"`
		Producer    string    `bson:"producer,omitempty"`
	}

	recordDocument struct {
		Index       int                `bson:"index"`
		ExecutionID string             `bson:"execution_id,omitempty"`
		Status      string             `bson:"status"`
		StartedAt   time.Time          `bson:"started_at"`
		CompletedAt time.Time          `bson:"completed_at"`
		Inputs      map[string]any     `bson:"inputs,omitempty"`
		Outputs     []artifactDocument `bson:"outputs,omitempty"`
		Logs        []string           `bson:"logs,omitempty"`
		Err         *errorDocument     `bson:"error,omitempty"`
	}

	chatEntryDocument struct {
		Role        string    `bson:"role"`
		Content     string    `bson:"content"`
		Timestamp   time.Time `bson:"timestamp"`
		SourceIndex *int      `bson:"source_index,omitempty"`
	}

	errorDocument struct {
		Code    string         `bson:"code"`
		Message string         `bson:"message"`
		Details map[string]any `bson:"details,omitempty"`
	}
)

func fromSession(sess *session.Session) sessionDocument {
	doc := sessionDocument{
		SessionID:      sess.ID,
		ScriptID:       sess.ScriptID,
		CurrentIndex:   sess.CurrentIndex,
		Status:         string(sess.Status),
		CreatedAt:      sess.CreatedAt.UTC(),
		UpdatedAt:      sess.UpdatedAt.UTC(),
		Vars:           sess.Vars.Snapshot(),
		Metadata:       sess.Metadata.Snapshot(),
		ExecutionIndex: sess.ExecutionIndex.Snapshot(),
	}
	artifacts := sess.Artifacts.Snapshot()
	if len(artifacts) > 0 {
		doc.Artifacts = make(map[string]artifactDocument, len(artifacts))
		for name, a := range artifacts {
			doc.Artifacts[name] = fromArtifact(a)
		}
	}
	for _, r := range sess.History {
		doc.History = append(doc.History, fromRecord(r))
	}
	for _, e := range sess.Transcript {
		doc.Transcript = append(doc.Transcript, chatEntryDocument(e))
	}
	return doc
}

func (doc sessionDocument) toSession() *session.Session {
	sess := &session.Session{
		ID:             doc.SessionID,
		ScriptID:       doc.ScriptID,
		CurrentIndex:   doc.CurrentIndex,
		Status:         session.Status(doc.Status),
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
		Vars:           caseless.FromMap(doc.Vars),
		Artifacts:      caseless.New[session.Artifact](),
		Metadata:       caseless.FromMap(doc.Metadata),
		ExecutionIndex: caseless.FromMap(doc.ExecutionIndex),
	}
	for name, a := range doc.Artifacts {
		sess.Artifacts.Set(name, a.toArtifact())
	}
	for _, r := range doc.History {
		sess.History = append(sess.History, r.toRecord())
	}
	for _, e := range doc.Transcript {
		sess.Transcript = append(sess.Transcript, session.ChatEntry(e))
	}
	return sess
}

func fromArtifact(a session.Artifact) artifactDocument {
	return artifactDocument{
		Name:        a.Name,
		ContentType: string(a.ContentType),
		Content:     a.Content,
		CreatedAt:   a.CreatedAt.UTC(),
		Producer:    a.Producer,
	}
}

func (doc artifactDocument) toArtifact() session.Artifact {
	return session.Artifact{
		Name:        doc.Name,
		ContentType: session.ArtifactType(doc.ContentType),
		Content:     doc.Content,
		CreatedAt:   doc.CreatedAt.UTC(),
		Producer:    doc.Producer,
	}
}

func fromRecord(r session.Record) recordDocument {
	doc := recordDocument{
		Index:       r.Index,
		ExecutionID: r.ExecutionID,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt.UTC(),
		CompletedAt: r.CompletedAt.UTC(),
		Inputs:      r.Inputs,
		Logs:        r.Logs,
	}
	for _, a := range r.Outputs {
		doc.Outputs = append(doc.Outputs, fromArtifact(a))
	}
	if r.Err != nil {
		doc.Err = &errorDocument{
			Code:    r.Err.Code,
			Message: r.Err.Message,
			Details: r.Err.Details,
		}
	}
	return doc
}

func (doc recordDocument) toRecord() session.Record {
	r := session.Record{
		Index:       doc.Index,
		ExecutionID: doc.ExecutionID,
		Status:      session.RecordStatus(doc.Status),
		StartedAt:   doc.StartedAt.UTC(),
		CompletedAt: doc.CompletedAt.UTC(),
		Inputs:      doc.Inputs,
		Logs:        doc.Logs,
	}
	for _, a := range doc.Outputs {
		r.Outputs = append(r.Outputs, a.toArtifact())
	}
	if doc.Err != nil {
		e := harmonyerrors.New(doc.Err.Code, doc.Err.Message)
		for k, v := range doc.Err.Details {
			e = e.WithDetail(k, v)
		}
		r.Err = e
	}
	return r
}
