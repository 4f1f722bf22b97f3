package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bucketName = "uploads"

type GridFS struct {
	bucket *gridfs.Bucket
}

func NewGridFS(db *mongo.Database) (*GridFS, error) {
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, err
	}
	return &GridFS{bucket: b}, nil
}

type gridMeta struct {
	Owner       int64  `bson:"owner"`
	ContentType string `bson:"contenttype"`
}

type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
	Name       string             `bson:"filename"`
	Metadata   gridMeta           `bson:"metadata"`
}

func (f gridFile) info() FileInfo {
	return FileInfo{
		ID:          f.ID.Hex(),
		Name:        f.Name,
		ContentType: f.Metadata.ContentType,
		Size:        f.Length,
		Owner:       f.Metadata.Owner,
		UploadedAt:  f.UploadDate,
	}
}

func (g *GridFS) Put(ctx context.Context, info FileInfo, r io.Reader) (FileInfo, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := g.bucket.SetWriteDeadline(dl); err != nil {
			return FileInfo{}, err
		}
	}
	id := primitive.NewObjectID()
	cr := &countingReader{r: r}
	opts := options.GridFSUpload().SetMetadata(gridMeta{Owner: info.Owner, ContentType: info.ContentType})
	if err := g.bucket.UploadFromStreamWithID(id, info.Name, cr, opts); err != nil {
		return FileInfo{}, err
	}
	info.ID = id.Hex()
	info.Size = cr.n
	info.UploadedAt = time.Now().UTC()
	return info, nil
}

func (g *GridFS) Stat(ctx context.Context, id string) (FileInfo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return FileInfo{}, ErrNotFound
	}
	cur, err := g.bucket.Find(bson.M{"_id": oid})
	if err != nil {
		return FileInfo{}, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return FileInfo{}, err
		}
		return FileInfo{}, ErrNotFound
	}
	var f gridFile
	if err := cur.Decode(&f); err != nil {
		return FileInfo{}, err
	}
	return f.info(), nil
}

func (g *GridFS) Open(ctx context.Context, id string) (io.ReadCloser, FileInfo, error) {
	info, err := g.Stat(ctx, id)
	if err != nil {
		return nil, FileInfo{}, err
	}
	oid, _ := primitive.ObjectIDFromHex(id)
	stream, err := g.bucket.OpenDownloadStream(oid)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, FileInfo{}, ErrNotFound
	}
	if err != nil {
		return nil, FileInfo{}, err
	}
	return stream, info, nil
}

func (g *GridFS) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	err = g.bucket.Delete(oid)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return ErrNotFound
	}
	return err
}
