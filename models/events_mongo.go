package models

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEventRepo struct {
	col *mongo.Collection
}

func NewMongoEventRepository(col *mongo.Collection) EventRepository {
	return &mongoEventRepo{col: col}
}

// EnsureEventIndexes creates the indexes browse and ownership queries rely on.
func EnsureEventIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "organizer", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dates.start", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	})
	return err
}

func (r *mongoEventRepo) Create(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *mongoEventRepo) GetByID(ctx context.Context, id string) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var e Event
	if err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	return e, nil
}

func browseQuery(f EventFilter) bson.M {
	q := bson.M{}
	if f.Kind != "" {
		q["type"] = f.Kind
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.Tags) > 0 {
		q["tags"] = bson.M{"$in": f.Tags}
	}
	if len(f.Organizers) > 0 {
		q["organizer"] = bson.M{"$in": f.Organizers}
	}
	if f.Eligibility != "" {
		q["eligibility"] = f.Eligibility
	}
	if f.Search != "" {
		rx := containsFold(f.Search)
		or := bson.A{
			bson.M{"name": rx},
			bson.M{"description": rx},
		}
		if len(f.SearchOrganizers) > 0 {
			or = append(or, bson.M{"organizer": bson.M{"$in": f.SearchOrganizers}})
		}
		q["$or"] = or
	}
	if f.From != nil || f.To != nil {
		rng := bson.M{}
		if f.From != nil {
			rng["$gte"] = *f.From
		}
		if f.To != nil {
			rng["$lte"] = *f.To
		}
		q["dates.start"] = rng
	}
	return q
}

func containsFold(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

func (r *mongoEventRepo) Find(ctx context.Context, f EventFilter) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "dates.start", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Skip > 0 {
		opts.SetSkip(int64(f.Skip))
	}
	return r.findAll(ctx, browseQuery(f), opts)
}

func (r *mongoEventRepo) findAll(ctx context.Context, q bson.M, opts *options.FindOptions) ([]Event, error) {
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Event{}
	for cur.Next(ctx) {
		var e Event
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

func (r *mongoEventRepo) FindByIDs(ctx context.Context, ids []string) ([]Event, error) {
	if len(ids) == 0 {
		return []Event{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.findAll(ctx, bson.M{"id": bson.M{"$in": ids}}, options.Find())
}

func (r *mongoEventRepo) TopByRegCount(ctx context.Context, limit int, exclude []string) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q := bson.M{"status": StatusPublished}
	if len(exclude) > 0 {
		q["id"] = bson.M{"$nin": exclude}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "regcount", Value: -1}, {Key: "dates.start", Value: 1}}).
		SetLimit(int64(limit))
	return r.findAll(ctx, q, opts)
}

func (r *mongoEventRepo) ListByOrganizer(ctx context.Context, organizerID int64) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.findAll(ctx, bson.M{"organizer": organizerID}, options.Find())
}

func (r *mongoEventRepo) Replace(ctx context.Context, e *Event, expect EventStatus, withVariants bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"name":        e.Name,
		"description": e.Description,
		"eligibility": e.Eligibility,
		"dates":       e.Dates,
		"limit":       e.Limit,
		"tags":        e.Tags,
		"status":      e.Status,
		"updatedat":   e.UpdatedAt,
	}
	if e.Normal != nil {
		set["normal"] = e.Normal
	}
	if e.Merch != nil {
		set["merch.purchaselimit"] = e.Merch.PurchaseLimit
		if withVariants {
			set["merch.variants"] = e.Merch.Variants
		}
	}
	filter := bson.M{
		"id":       e.ID,
		"status":   expect,
		"regcount": bson.M{"$lte": e.Limit},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoEventRepo) SetForm(ctx context.Context, id string, form []FormField) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"id": id, "type": KindNormal, "regcount": 0},
		bson.M{"$set": bson.M{"normal.formschema": form, "updatedat": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoEventRepo) ReserveSeat(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"id":             id,
		"status":         StatusPublished,
		"dates.deadline": bson.M{"$gte": now},
		"$expr":          bson.M{"$lt": bson.A{"$regcount", "$limit"}},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"regcount": 1}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoEventRepo) ReleaseSeat(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"id": id, "regcount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"regcount": -1}},
	)
	return err
}

func (r *mongoEventRepo) DecrementStock(ctx context.Context, id, variant string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"id":   id,
		"type": KindMerch,
		"merch.variants": bson.M{"$elemMatch": bson.M{
			"name":  variant,
			"stock": bson.M{"$gt": 0},
		}},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"merch.variants.$.stock": -1}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoEventRepo) RestoreStock(ctx context.Context, id, variant string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"id": id, "merch.variants.name": variant},
		bson.M{"$inc": bson.M{"merch.variants.$.stock": 1}},
	)
	return err
}

func (r *mongoEventRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := r.col.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
