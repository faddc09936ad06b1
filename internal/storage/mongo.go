package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"remindme/internal/reminder"
	"remindme/internal/user"
)

// MongoStorage implements the Storage interface using MongoDB. A unique
// index on reminder_completions.log_id enforces the exactly-once completion
// contract; the loser of a concurrent insert gets a duplicate-key error that
// InsertCompletionIfAbsent maps to inserted=false.
type MongoStorage struct {
	client      *mongo.Client
	database    *mongo.Database
	users       *mongo.Collection
	reminders   *mongo.Collection
	logs        *mongo.Collection
	completions *mongo.Collection
	streaks     *mongo.Collection
	reports     *mongo.Collection
}

// NewMongoStorage creates a new MongoDB storage instance
func NewMongoStorage(connectionString, databaseName string) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(databaseName)
	ms := &MongoStorage{
		client:      client,
		database:    database,
		users:       database.Collection("users"),
		reminders:   database.Collection("reminders"),
		logs:        database.Collection("reminder_logs"),
		completions: database.Collection("reminder_completions"),
		streaks:     database.Collection("user_streaks"),
		reports:     database.Collection("weekly_reports"),
	}
	if err := ms.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return ms, nil
}

// Close closes the MongoDB connection
func (ms *MongoStorage) Close(ctx context.Context) error {
	return ms.client.Disconnect(ctx)
}

func (ms *MongoStorage) createIndexes(ctx context.Context) error {
	// log_id uniqueness is the completion exactly-once guard.
	_, err := ms.completions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "log_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create completion log_id index: %w", err)
	}
	_, err = ms.streaks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "reminder_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create streak index: %w", err)
	}
	return nil
}

// Document shapes. Kept separate from the entity structs so bson field
// names stay stable independent of the JSON API.

type mongoUser struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Timezone  string    `bson:"timezone"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoReminder struct {
	ID            string     `bson:"_id"`
	OwnerID       string     `bson:"user_id"`
	Title         string     `bson:"title"`
	Description   string     `bson:"description"`
	TimeOfDay     string     `bson:"reminder_time"`
	Recurrence    string     `bson:"recurrence_type"`
	WeeklyDays    []int      `bson:"weekly_days,omitempty"`
	Active        bool       `bson:"is_active"`
	LastTriggered *time.Time `bson:"last_triggered,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

type mongoLog struct {
	ID          string    `bson:"_id"`
	ReminderID  string    `bson:"reminder_id"`
	OwnerID     string    `bson:"user_id"`
	TriggeredAt time.Time `bson:"triggered_at"`
	Status      string    `bson:"status"`
}

type mongoCompletion struct {
	ID            string    `bson:"_id"`
	ReminderID    string    `bson:"reminder_id"`
	OwnerID       string    `bson:"user_id"`
	LogID         string    `bson:"log_id"`
	CompletedAt   time.Time `bson:"completed_at"`
	ScheduledTime time.Time `bson:"scheduled_time"`
	Status        string    `bson:"status"`
}

type mongoStreak struct {
	ID            string     `bson:"_id"`
	OwnerID       string     `bson:"user_id"`
	ReminderID    string     `bson:"reminder_id"`
	CurrentStreak int        `bson:"current_streak"`
	LongestStreak int        `bson:"longest_streak"`
	LastCompleted *time.Time `bson:"last_completed,omitempty"`
	LastUpdated   time.Time  `bson:"last_updated"`
}

// User operations
func (ms *MongoStorage) CreateUser(ctx context.Context, u *user.User) error {
	doc := mongoUser{ID: u.ID, Name: u.Name, Email: u.Email, Timezone: u.Timezone, CreatedAt: u.CreatedAt}
	if _, err := ms.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (ms *MongoStorage) GetUser(ctx context.Context, id string) (*user.User, error) {
	var doc mongoUser
	err := ms.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return docToUser(&doc), nil
}

func (ms *MongoStorage) ListUsers(ctx context.Context) ([]*user.User, error) {
	cursor, err := ms.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*user.User
	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, docToUser(&doc))
	}
	return users, cursor.Err()
}

func (ms *MongoStorage) DeleteUser(ctx context.Context, id string) error {
	if _, err := ms.users.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Reminder operations
func (ms *MongoStorage) CreateReminder(ctx context.Context, r *reminder.Reminder) error {
	if _, err := ms.reminders.InsertOne(ctx, reminderToDoc(r)); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (ms *MongoStorage) GetReminder(ctx context.Context, id, ownerID string) (*reminder.Reminder, error) {
	var doc mongoReminder
	err := ms.reminders.FindOne(ctx, bson.M{"_id": id, "user_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return docToReminder(&doc), nil
}

func (ms *MongoStorage) ListReminders(ctx context.Context, ownerID string) ([]*reminder.Reminder, error) {
	cursor, err := ms.reminders.Find(ctx, bson.M{"user_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []*reminder.Reminder
	for cursor.Next(ctx) {
		var doc mongoReminder
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode reminder: %w", err)
		}
		reminders = append(reminders, docToReminder(&doc))
	}
	return reminders, cursor.Err()
}

func (ms *MongoStorage) UpdateReminder(ctx context.Context, r *reminder.Reminder) error {
	update := bson.M{"$set": bson.M{
		"title":           r.Title,
		"description":     r.Description,
		"reminder_time":   r.TimeOfDay,
		"recurrence_type": r.Recurrence,
		"weekly_days":     r.WeeklyDays,
		"is_active":       r.Active,
		"updated_at":      time.Now().UTC(),
	}}
	res, err := ms.reminders.UpdateOne(ctx, bson.M{"_id": r.ID, "user_id": r.OwnerID}, update)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("reminder %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (ms *MongoStorage) DeleteReminder(ctx context.Context, id, ownerID string) error {
	if _, err := ms.reminders.DeleteOne(ctx, bson.M{"_id": id, "user_id": ownerID}); err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

// Scheduler queries
func (ms *MongoStorage) ListActiveReminders(ctx context.Context) ([]*reminder.OwnerReminder, error) {
	cursor, err := ms.reminders.Find(ctx, bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list active reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoReminder
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode active reminders: %w", err)
	}

	owners, err := ms.usersByID(ctx, ownerIDs(docs))
	if err != nil {
		return nil, err
	}

	var reminders []*reminder.OwnerReminder
	for i := range docs {
		u, ok := owners[docs[i].OwnerID]
		if !ok {
			continue
		}
		reminders = append(reminders, &reminder.OwnerReminder{
			Reminder:   *docToReminder(&docs[i]),
			OwnerName:  u.Name,
			OwnerEmail: u.Email,
			Timezone:   u.Timezone,
		})
	}
	return reminders, nil
}

func (ms *MongoStorage) UpdateLastTriggered(ctx context.Context, reminderID string, at time.Time) error {
	res, err := ms.reminders.UpdateOne(ctx, bson.M{"_id": reminderID},
		bson.M{"$set": bson.M{"last_triggered": at, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update last triggered: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// Trigger log operations
func (ms *MongoStorage) AppendTriggerLog(ctx context.Context, log *reminder.TriggerLog) error {
	doc := mongoLog{ID: log.ID, ReminderID: log.ReminderID, OwnerID: log.OwnerID,
		TriggeredAt: log.TriggeredAt, Status: log.Status}
	if _, err := ms.logs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append trigger log: %w", err)
	}
	return nil
}

func (ms *MongoStorage) GetTriggerLog(ctx context.Context, id, ownerID string) (*reminder.TriggerLog, error) {
	var doc mongoLog
	err := ms.logs.FindOne(ctx, bson.M{"_id": id, "user_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("trigger log %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trigger log: %w", err)
	}
	l := reminder.TriggerLog(doc)
	return &l, nil
}

func (ms *MongoStorage) ListUnacknowledgedLogs(ctx context.Context, olderThan time.Time) ([]*reminder.PendingLog, error) {
	filter := bson.M{
		"status":       reminder.LogStatusSent,
		"triggered_at": bson.M{"$lte": olderThan},
	}
	return ms.pendingLogs(ctx, filter, 0)
}

func (ms *MongoStorage) ListPendingLogs(ctx context.Context, ownerID string, limit int) ([]*reminder.PendingLog, error) {
	return ms.pendingLogs(ctx, bson.M{"user_id": ownerID}, limit)
}

// pendingLogs finds matching logs without a completion and joins reminder
// and owner fields client side; logs whose reminder was deleted are dropped.
func (ms *MongoStorage) pendingLogs(ctx context.Context, filter bson.M, limit int) ([]*reminder.PendingLog, error) {
	cursor, err := ms.logs.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "triggered_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoLog
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode logs: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	logIDs := make([]string, len(docs))
	for i, d := range docs {
		logIDs[i] = d.ID
	}
	acked, err := ms.ackedLogIDs(ctx, logIDs)
	if err != nil {
		return nil, err
	}

	var pending []mongoLog
	reminderIDSet := make(map[string]struct{})
	userIDSet := make(map[string]struct{})
	for _, d := range docs {
		if _, ok := acked[d.ID]; ok {
			continue
		}
		pending = append(pending, d)
		reminderIDSet[d.ReminderID] = struct{}{}
		userIDSet[d.OwnerID] = struct{}{}
	}

	reminders, err := ms.remindersByID(ctx, keys(reminderIDSet))
	if err != nil {
		return nil, err
	}
	owners, err := ms.usersByID(ctx, keys(userIDSet))
	if err != nil {
		return nil, err
	}

	var logs []*reminder.PendingLog
	for _, d := range pending {
		r, ok := reminders[d.ReminderID]
		if !ok {
			continue
		}
		pl := &reminder.PendingLog{
			TriggerLog: reminder.TriggerLog(d),
			Title:      r.Title,
			TimeOfDay:  r.TimeOfDay,
			Recurrence: r.Recurrence,
		}
		if u, ok := owners[d.OwnerID]; ok {
			pl.OwnerName = u.Name
			pl.OwnerEmail = u.Email
			pl.Timezone = u.Timezone
		}
		logs = append(logs, pl)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (ms *MongoStorage) ackedLogIDs(ctx context.Context, logIDs []string) (map[string]struct{}, error) {
	cursor, err := ms.completions.Find(ctx, bson.M{"log_id": bson.M{"$in": logIDs}},
		options.Find().SetProjection(bson.M{"log_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer cursor.Close(ctx)

	acked := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			LogID string `bson:"log_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode completion: %w", err)
		}
		acked[doc.LogID] = struct{}{}
	}
	return acked, cursor.Err()
}

// Completion operations
func (ms *MongoStorage) InsertCompletionIfAbsent(ctx context.Context, c *reminder.Completion) (bool, error) {
	doc := mongoCompletion{ID: c.ID, ReminderID: c.ReminderID, OwnerID: c.OwnerID,
		LogID: c.LogID, CompletedAt: c.CompletedAt, ScheduledTime: c.ScheduledTime, Status: c.Status}
	_, err := ms.completions.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert completion: %w", err)
	}
	return true, nil
}

func (ms *MongoStorage) ListCompletions(ctx context.Context, reminderID, ownerID string, limit int) ([]*reminder.Completion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_time", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := ms.completions.Find(ctx, bson.M{"reminder_id": reminderID, "user_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer cursor.Close(ctx)

	var completions []*reminder.Completion
	for cursor.Next(ctx) {
		var doc mongoCompletion
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode completion: %w", err)
		}
		c := reminder.Completion(doc)
		completions = append(completions, &c)
	}
	return completions, cursor.Err()
}

func (ms *MongoStorage) AggregateCompletions(ctx context.Context, ownerID string, since time.Time) (reminder.CompletionStats, error) {
	var stats reminder.CompletionStats
	cursor, err := ms.completions.Find(ctx, bson.M{
		"user_id":        ownerID,
		"scheduled_time": bson.M{"$gte": since},
	})
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate completions: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc mongoCompletion
		if err := cursor.Decode(&doc); err != nil {
			return stats, fmt.Errorf("failed to decode completion: %w", err)
		}
		stats.Total++
		switch doc.Status {
		case reminder.CompletionCompleted:
			stats.Completed++
		case reminder.CompletionMissed:
			stats.Missed++
		}
	}
	if err := cursor.Err(); err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// Streak operations
func (ms *MongoStorage) GetOrCreateStreak(ctx context.Context, ownerID, reminderID string) (*reminder.StreakState, error) {
	filter := bson.M{"user_id": ownerID, "reminder_id": reminderID}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":            ownerID + "|" + reminderID,
		"user_id":        ownerID,
		"reminder_id":    reminderID,
		"current_streak": 0,
		"longest_streak": 0,
		"last_updated":   time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc mongoStreak
	if err := ms.streaks.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to get or create streak: %w", err)
	}
	st := reminder.StreakState(doc)
	return &st, nil
}

func (ms *MongoStorage) SaveStreak(ctx context.Context, st *reminder.StreakState) error {
	update := bson.M{"$set": bson.M{
		"current_streak": st.CurrentStreak,
		"longest_streak": st.LongestStreak,
		"last_completed": st.LastCompleted,
		"last_updated":   st.LastUpdated,
	}}
	_, err := ms.streaks.UpdateOne(ctx,
		bson.M{"user_id": st.OwnerID, "reminder_id": st.ReminderID}, update)
	if err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

func (ms *MongoStorage) ListStreaks(ctx context.Context, ownerID string) ([]*reminder.StreakSummary, error) {
	cursor, err := ms.streaks.Find(ctx, bson.M{"user_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "current_streak", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoStreak
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode streaks: %w", err)
	}

	idSet := make(map[string]struct{})
	for _, d := range docs {
		idSet[d.ReminderID] = struct{}{}
	}
	reminders, err := ms.remindersByID(ctx, keys(idSet))
	if err != nil {
		return nil, err
	}

	var streaks []*reminder.StreakSummary
	for _, d := range docs {
		sum := &reminder.StreakSummary{StreakState: reminder.StreakState(d)}
		if r, ok := reminders[d.ReminderID]; ok {
			sum.Title = r.Title
		}
		streaks = append(streaks, sum)
	}
	return streaks, nil
}

// Weekly report operations
func (ms *MongoStorage) SaveWeeklyReport(ctx context.Context, r *reminder.WeeklyReport) error {
	doc := bson.M{
		"_id":             r.ID,
		"user_id":         r.OwnerID,
		"week_start":      r.WeekStart,
		"week_end":        r.WeekEnd,
		"total_reminders": r.Stats.Total,
		"completed_count": r.Stats.Completed,
		"missed_count":    r.Stats.Missed,
		"completion_rate": r.Stats.CompletionRate,
		"report_data":     string(r.Snapshot),
		"sent_at":         r.SentAt,
	}
	if _, err := ms.reports.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save weekly report: %w", err)
	}
	return nil
}

// Join helpers

func (ms *MongoStorage) usersByID(ctx context.Context, ids []string) (map[string]*mongoUser, error) {
	out := make(map[string]*mongoUser)
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := ms.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		d := doc
		out[doc.ID] = &d
	}
	return out, cursor.Err()
}

func (ms *MongoStorage) remindersByID(ctx context.Context, ids []string) (map[string]*mongoReminder, error) {
	out := make(map[string]*mongoReminder)
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := ms.reminders.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc mongoReminder
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode reminder: %w", err)
		}
		d := doc
		out[doc.ID] = &d
	}
	return out, cursor.Err()
}

func ownerIDs(docs []mongoReminder) []string {
	set := make(map[string]struct{})
	for _, d := range docs {
		set[d.OwnerID] = struct{}{}
	}
	return keys(set)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func docToUser(d *mongoUser) *user.User {
	return &user.User{ID: d.ID, Name: d.Name, Email: d.Email, Timezone: d.Timezone, CreatedAt: d.CreatedAt}
}

func docToReminder(d *mongoReminder) *reminder.Reminder {
	return &reminder.Reminder{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Title:         d.Title,
		Description:   d.Description,
		TimeOfDay:     d.TimeOfDay,
		Recurrence:    d.Recurrence,
		WeeklyDays:    d.WeeklyDays,
		Active:        d.Active,
		LastTriggered: d.LastTriggered,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func reminderToDoc(r *reminder.Reminder) mongoReminder {
	return mongoReminder{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Title:         r.Title,
		Description:   r.Description,
		TimeOfDay:     r.TimeOfDay,
		Recurrence:    r.Recurrence,
		WeeklyDays:    r.WeeklyDays,
		Active:        r.Active,
		LastTriggered: r.LastTriggered,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

var _ Storage = (*MongoStorage)(nil)
