package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore collection names. They match the documents written by the
// existing web dashboard.
const (
	colStudents = "students"
	colEvents   = "attendance"
	colBatches  = "attendance_batches"
	colSettings = "settings"
)

type studentDoc struct {
	Name      string    `firestore:"name"`
	BadgeID   string    `firestore:"rfid"`
	ClassName string    `firestore:"className"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type eventDoc struct {
	StudentID string    `firestore:"studentId"`
	Day       string    `firestore:"day"`
	Timestamp time.Time `firestore:"checkInTime"`
	Source    string    `firestore:"source"`
}

type batchDoc struct {
	Name      string      `firestore:"name"`
	CreatedAt time.Time   `firestore:"createdAt"`
	Records   []recordDoc `firestore:"records"`
}

type recordDoc struct {
	BadgeID     string    `firestore:"rfid"`
	Name        string    `firestore:"name"`
	ClassName   string    `firestore:"className"`
	CheckedInAt time.Time `firestore:"timestamp"`
}

type settingDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// FirestoreRepository stores attendance data in Cloud Firestore. Event
// documents are keyed by "<studentId>_<day>" so a second check-in for the
// same day fails on Create.
type FirestoreRepository struct {
	client *firestore.Client
}

// NewFirestoreRepository wraps an open client.
func NewFirestoreRepository(client *firestore.Client) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

func eventDocID(studentID, day string) string {
	return studentID + "_" + day
}

var errInvalidStudentDoc = errors.New("student document missing name or rfid")

func toStudent(snap *firestore.DocumentSnapshot) (Student, error) {
	var d studentDoc
	if err := snap.DataTo(&d); err != nil {
		return Student{}, err
	}
	if d.Name == "" || d.BadgeID == "" {
		return Student{}, fmt.Errorf("%s: %w", snap.Ref.ID, errInvalidStudentDoc)
	}
	return Student{ID: snap.Ref.ID, Name: d.Name, BadgeID: d.BadgeID, ClassName: d.ClassName, CreatedAt: d.CreatedAt}, nil
}

func fromStudent(st Student) studentDoc {
	return studentDoc{Name: st.Name, BadgeID: st.BadgeID, ClassName: st.ClassName, CreatedAt: st.CreatedAt}
}

func isCode(err error, c codes.Code) bool {
	return err != nil && status.Code(err) == c
}

func collectStudents(iter *firestore.DocumentIterator) ([]Student, error) {
	defer iter.Stop()
	var out []Student
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		st, err := toStudent(snap)
		if errors.Is(err, errInvalidStudentDoc) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
}

// FindByBadge returns every student carrying badgeID, oldest first.
func (f *FirestoreRepository) FindByBadge(ctx context.Context, badgeID string) ([]Student, error) {
	students, err := collectStudents(f.client.Collection(colStudents).Where("rfid", "==", badgeID).Documents(ctx))
	if err != nil {
		return nil, err
	}
	sortStudents(students, false)
	return students, nil
}

// ListStudents returns the roster, newest first.
func (f *FirestoreRepository) ListStudents(ctx context.Context) ([]Student, error) {
	students, err := collectStudents(f.client.Collection(colStudents).Documents(ctx))
	if err != nil {
		return nil, err
	}
	sortStudents(students, true)
	return students, nil
}

func (f *FirestoreRepository) GetStudent(ctx context.Context, id string) (Student, error) {
	snap, err := f.client.Collection(colStudents).Doc(id).Get(ctx)
	if isCode(err, codes.NotFound) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, err
	}
	return toStudent(snap)
}

// CreateStudent checks badge uniqueness and writes the student in one
// transaction.
func (f *FirestoreRepository) CreateStudent(ctx context.Context, st Student) (Student, error) {
	students := f.client.Collection(colStudents)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		taken, err := tx.Documents(students.Where("rfid", "==", st.BadgeID).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return ErrBadgeTaken
		}
		return tx.Create(students.Doc(st.ID), fromStudent(st))
	})
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

func (f *FirestoreRepository) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	students := f.client.Collection(colStudents)
	var updated Student
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(students.Doc(st.ID))
		if isCode(err, codes.NotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		taken, err := tx.Documents(students.Where("rfid", "==", st.BadgeID)).GetAll()
		if err != nil {
			return err
		}
		for _, other := range taken {
			if other.Ref.ID != st.ID {
				return ErrBadgeTaken
			}
		}
		var cur studentDoc
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		st.CreatedAt = cur.CreatedAt
		updated = st
		return tx.Set(snap.Ref, fromStudent(st))
	})
	if err != nil {
		return Student{}, err
	}
	return updated, nil
}

func (f *FirestoreRepository) DeleteStudent(ctx context.Context, id string) error {
	_, err := f.client.Collection(colStudents).Doc(id).Delete(ctx, firestore.Exists)
	if isCode(err, codes.NotFound) {
		return ErrNotFound
	}
	return err
}

func (f *FirestoreRepository) CountStudents(ctx context.Context) (int, error) {
	res, err := f.client.Collection(colStudents).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, errors.New("firestore: count aggregation missing")
	}
	return int(v.GetIntegerValue()), nil
}

// SeedStudents writes students in one transaction when the collection is
// empty.
func (f *FirestoreRepository) SeedStudents(ctx context.Context, seed []Student) (bool, error) {
	students := f.client.Collection(colStudents)
	seeded := false
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		seeded = false
		existing, err := tx.Documents(students.Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for _, st := range seed {
			if err := tx.Create(students.Doc(st.ID), fromStudent(st)); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	return seeded, err
}

// InsertEvent creates the (student, day) document and maps AlreadyExists to
// ErrDuplicateEvent.
func (f *FirestoreRepository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	ref := f.client.Collection(colEvents).Doc(eventDocID(evt.StudentID, evt.Day))
	_, err := ref.Create(ctx, eventDoc{
		StudentID: evt.StudentID,
		Day:       evt.Day,
		Timestamp: evt.Timestamp,
		Source:    evt.Source,
	})
	if isCode(err, codes.AlreadyExists) {
		return Event{}, ErrDuplicateEvent
	}
	if err != nil {
		return Event{}, err
	}
	evt.ID = ref.ID
	return evt, nil
}

// HasEventBetween needs the composite index (studentId ASC, checkInTime ASC).
func (f *FirestoreRepository) HasEventBetween(ctx context.Context, studentID string, start, end time.Time) (bool, error) {
	iter := f.client.Collection(colEvents).
		Where("studentId", "==", studentID).
		Where("checkInTime", ">=", start).
		Where("checkInTime", "<", end).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FirestoreRepository) ListEventsBetween(ctx context.Context, start, end time.Time) ([]Event, error) {
	iter := f.client.Collection(colEvents).
		Where("checkInTime", ">=", start).
		Where("checkInTime", "<", end).
		OrderBy("checkInTime", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []Event
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var d eventDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		out = append(out, Event{ID: snap.Ref.ID, StudentID: d.StudentID, Day: d.Day, Timestamp: d.Timestamp, Source: d.Source})
	}
}

func (f *FirestoreRepository) GetSetting(ctx context.Context, key string) (Setting, error) {
	snap, err := f.client.Collection(colSettings).Doc(key).Get(ctx)
	if isCode(err, codes.NotFound) {
		return Setting{}, ErrNotFound
	}
	if err != nil {
		return Setting{}, err
	}
	var d settingDoc
	if err := snap.DataTo(&d); err != nil {
		return Setting{}, err
	}
	return Setting{Key: key, Value: d.Value, UpdatedAt: d.UpdatedAt}, nil
}

func (f *FirestoreRepository) PutSetting(ctx context.Context, key, value string) (Setting, error) {
	d := settingDoc{Value: value, UpdatedAt: time.Now().UTC()}
	if _, err := f.client.Collection(colSettings).Doc(key).Set(ctx, d); err != nil {
		return Setting{}, err
	}
	return Setting{Key: key, Value: d.Value, UpdatedAt: d.UpdatedAt}, nil
}

// ArchiveEvents reads, snapshots and deletes every event in one
// transaction. Firestore caps a transaction at 500 writes, so a day larger
// than that has to be archived more than once.
func (f *FirestoreRepository) ArchiveEvents(ctx context.Context, batch Batch) (Batch, error) {
	var records []BatchRecord
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(f.client.Collection(colEvents)).GetAll()
		if err != nil {
			return err
		}

		events := make([]eventDoc, len(snaps))
		refs := make([]*firestore.DocumentRef, 0, len(snaps))
		seen := make(map[string]bool)
		for i, snap := range snaps {
			if err := snap.DataTo(&events[i]); err != nil {
				return err
			}
			if id := events[i].StudentID; id != "" && !seen[id] {
				seen[id] = true
				refs = append(refs, f.client.Collection(colStudents).Doc(id))
			}
		}

		byID := make(map[string]Student)
		if len(refs) > 0 {
			studentSnaps, err := tx.GetAll(refs)
			if err != nil {
				return err
			}
			for _, s := range studentSnaps {
				if !s.Exists() {
					continue
				}
				st, err := toStudent(s)
				if errors.Is(err, errInvalidStudentDoc) {
					continue
				}
				if err != nil {
					return err
				}
				byID[st.ID] = st
			}
		}

		records = make([]BatchRecord, 0, len(events))
		for _, d := range events {
			var ref *Student
			if st, ok := byID[d.StudentID]; ok {
				ref = &st
			}
			records = append(records, resolveRecord(Event{StudentID: d.StudentID, Timestamp: d.Timestamp}, ref))
		}
		sortRecords(records)

		doc := batchDoc{Name: batch.Name, CreatedAt: batch.CreatedAt, Records: make([]recordDoc, len(records))}
		for i, r := range records {
			doc.Records[i] = recordDoc(r)
		}
		if err := tx.Create(f.client.Collection(colBatches).Doc(batch.ID), doc); err != nil {
			return err
		}
		for _, snap := range snaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	batch.Records = records
	return batch, nil
}

func (f *FirestoreRepository) ListBatches(ctx context.Context) ([]Batch, error) {
	iter := f.client.Collection(colBatches).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []Batch
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var d batchDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		b := Batch{ID: snap.Ref.ID, Name: d.Name, CreatedAt: d.CreatedAt, Records: make([]BatchRecord, len(d.Records))}
		for i, r := range d.Records {
			b.Records[i] = BatchRecord(r)
		}
		out = append(out, b)
	}
}

// Ping reads a settings document; a missing document still proves
// connectivity.
func (f *FirestoreRepository) Ping(ctx context.Context) error {
	_, err := f.client.Collection(colSettings).Doc(DeviceKeySetting).Get(ctx)
	if isCode(err, codes.NotFound) {
		return nil
	}
	return err
}
