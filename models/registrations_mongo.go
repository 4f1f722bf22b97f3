package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ticketIndex     = "ticketid_unique"
	oneActiveNormal = "user_event_registered"
)

type mongoRegistrationRepo struct {
	col *mongo.Collection
}

func NewMongoRegistrationRepository(col *mongo.Collection) RegistrationRepository {
	return &mongoRegistrationRepo{col: col}
}

// EnsureRegistrationIndexes installs the uniqueness guarantees Insert
// depends on: one Registered ticket per user and Normal event, and
// globally unique ticket ids.
func EnsureRegistrationIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticketid", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(ticketIndex),
		},
		{
			Keys: bson.D{{Key: "user", Value: 1}, {Key: "event", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(oneActiveNormal).
				SetPartialFilterExpression(bson.M{"type": KindNormal, "status": RegRegistered}),
		},
		{Keys: bson.D{{Key: "event", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdat", Value: -1}}},
		{Keys: bson.D{{Key: "payment.proofid", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func (r *mongoRegistrationRepo) Insert(ctx context.Context, reg *Registration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.col.InsertOne(ctx, reg)
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), ticketIndex) {
			return ErrTicketCollision
		}
		return ErrDuplicate
	}
	return err
}

func (r *mongoRegistrationRepo) findOne(ctx context.Context, q bson.M) (Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var reg Registration
	if err := r.col.FindOne(ctx, q).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Registration{}, ErrNotFound
		}
		return Registration{}, err
	}
	return reg, nil
}

func (r *mongoRegistrationRepo) GetByTicket(ctx context.Context, ticketID string) (Registration, error) {
	return r.findOne(ctx, bson.M{"ticketid": ticketID})
}

func (r *mongoRegistrationRepo) FindByProof(ctx context.Context, fileID string) (Registration, error) {
	return r.findOne(ctx, bson.M{"payment.proofid": fileID})
}

func (r *mongoRegistrationRepo) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Registration{}
	for cur.Next(ctx) {
		var reg Registration
		if err := cur.Decode(&reg); err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, cur.Err()
}

func (r *mongoRegistrationRepo) ListByUser(ctx context.Context, userID int64) ([]Registration, error) {
	return r.find(ctx, bson.M{"user": userID},
		options.Find().SetSort(bson.D{{Key: "createdat", Value: -1}}))
}

func (r *mongoRegistrationRepo) ListByEvent(ctx context.Context, eventID string, statuses []RegStatus) ([]Registration, error) {
	q := bson.M{"event": eventID}
	if len(statuses) > 0 {
		q["status"] = bson.M{"$in": statuses}
	}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}}))
}

func (r *mongoRegistrationRepo) ListActive(ctx context.Context, eventID string, userID int64) ([]Registration, error) {
	return r.find(ctx, bson.M{
		"event":  eventID,
		"user":   userID,
		"status": bson.M{"$in": ActiveStatuses},
	}, options.Find())
}

func (r *mongoRegistrationRepo) CountByEvent(ctx context.Context, eventID string, statuses []RegStatus) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q := bson.M{"event": eventID}
	if len(statuses) > 0 {
		q["status"] = bson.M{"$in": statuses}
	}
	n, err := r.col.CountDocuments(ctx, q)
	return int(n), err
}

func (r *mongoRegistrationRepo) update(ctx context.Context, q, u bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, q, u)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoRegistrationRepo) Transition(ctx context.Context, ticketID string, from []RegStatus, to RegStatus) (bool, error) {
	return r.update(ctx,
		bson.M{"ticketid": ticketID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updatedat": time.Now().UTC()}},
	)
}

func (r *mongoRegistrationRepo) AttachProof(ctx context.Context, ticketID string, from []RegStatus, p Payment) (bool, error) {
	return r.update(ctx,
		bson.M{"ticketid": ticketID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": RegPending, "payment": p, "updatedat": time.Now().UTC()}},
	)
}

func (r *mongoRegistrationRepo) ClaimPayment(ctx context.Context, ticketID, claim string, at, staleBefore time.Time) (bool, error) {
	return r.update(ctx,
		bson.M{
			"ticketid": ticketID,
			"status":   RegPending,
			"$or": bson.A{
				bson.M{"payment.claim": bson.M{"$in": bson.A{nil, ""}}},
				bson.M{"payment.claimedat": bson.M{"$lt": staleBefore}},
			},
		},
		bson.M{"$set": bson.M{"payment.claim": claim, "payment.claimedat": at}},
	)
}

func (r *mongoRegistrationRepo) ReleaseClaim(ctx context.Context, ticketID, claim string) error {
	_, err := r.update(ctx,
		bson.M{"ticketid": ticketID, "payment.claim": claim},
		bson.M{"$unset": bson.M{"payment.claim": "", "payment.claimedat": ""}},
	)
	return err
}

func (r *mongoRegistrationRepo) ResolvePayment(ctx context.Context, ticketID, claim string, to RegStatus, by int64, note string, at time.Time) (bool, error) {
	return r.update(ctx,
		bson.M{"ticketid": ticketID, "status": RegPending, "payment.claim": claim},
		bson.M{
			"$set": bson.M{
				"status":             to,
				"payment.resolvedat": at,
				"payment.resolvedby": by,
				"payment.note":       note,
				"updatedat":          at,
			},
			"$unset": bson.M{"payment.claim": "", "payment.claimedat": ""},
		},
	)
}

func (r *mongoRegistrationRepo) MarkCheckedIn(ctx context.Context, ticketID string, admitted []RegStatus, at time.Time, entry CheckinEntry) (bool, error) {
	return r.update(ctx,
		bson.M{"ticketid": ticketID, "checkin": false, "status": bson.M{"$in": admitted}},
		bson.M{
			"$set":  bson.M{"checkin": true, "checkinat": at, "updatedat": at},
			"$push": bson.M{"checkinlog": entry},
		},
	)
}

func (r *mongoRegistrationRepo) AppendCheckin(ctx context.Context, ticketID string, entry CheckinEntry) error {
	ok, err := r.update(ctx,
		bson.M{"ticketid": ticketID},
		bson.M{"$push": bson.M{"checkinlog": entry}, "$set": bson.M{"updatedat": entry.At}},
	)
	if err == nil && !ok {
		return ErrNotFound
	}
	return err
}

func (r *mongoRegistrationRepo) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"event": eventID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *mongoRegistrationRepo) TrendingEventIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"createdat": bson.M{"$gte": since}, "status": bson.M{"$ne": RegCancelled}}}},
		{{Key: "$group", Value: bson.M{"_id": "$event", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID    string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
