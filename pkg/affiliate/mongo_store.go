package affiliate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is the document-store ledger. Idempotency relies on the same
// conditional-update discipline as the SQL store: every transition filters
// on the expected source status and pairs the status flip with the balance
// arithmetic in findOneAndUpdate/$inc operations. Ids are persisted as
// strings.
type MongoStore struct {
	affiliates  *mongo.Collection
	commissions *mongo.Collection
	withdrawals *mongo.Collection
}

// NewMongoStore creates the store over an existing database handle. The
// unique indexes on affiliate code and commission order id must exist; see
// EnsureIndexes.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		affiliates:  db.Collection("affiliates"),
		commissions: db.Collection("affiliate_commissions"),
		withdrawals: db.Collection("affiliate_withdrawals"),
	}
}

// EnsureIndexes creates the unique indexes the ledger depends on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.affiliates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.commissions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "order_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type affiliateDoc struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"user_id"`
	Code             string    `bson:"code"`
	Status           string    `bson:"status"`
	TotalEarnings    int64     `bson:"total_earnings"`
	TotalWithdrawn   int64     `bson:"total_withdrawn"`
	AvailableBalance int64     `bson:"available_balance"`
	TotalOrders      int64     `bson:"total_orders"`
	DeliveredOrders  int64     `bson:"delivered_orders"`
	CurrentLevel     int       `bson:"current_level"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func toAffiliateDoc(a *Affiliate) affiliateDoc {
	return affiliateDoc{
		ID:               a.ID.String(),
		UserID:           a.UserID.String(),
		Code:             a.Code,
		Status:           string(a.Status),
		TotalEarnings:    a.TotalEarnings,
		TotalWithdrawn:   a.TotalWithdrawn,
		AvailableBalance: a.AvailableBalance,
		TotalOrders:      a.TotalOrders,
		DeliveredOrders:  a.DeliveredOrders,
		CurrentLevel:     a.CurrentLevel,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (d affiliateDoc) toAffiliate() (*Affiliate, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &Affiliate{
		ID:               id,
		UserID:           userID,
		Code:             d.Code,
		Status:           AffiliateStatus(d.Status),
		TotalEarnings:    d.TotalEarnings,
		TotalWithdrawn:   d.TotalWithdrawn,
		AvailableBalance: d.AvailableBalance,
		TotalOrders:      d.TotalOrders,
		DeliveredOrders:  d.DeliveredOrders,
		CurrentLevel:     d.CurrentLevel,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func (s *MongoStore) CreateAffiliate(ctx context.Context, a *Affiliate) error {
	_, err := s.affiliates.InsertOne(ctx, toAffiliateDoc(a))
	if mongo.IsDuplicateKeyError(err) {
		return ErrCodeTaken
	}
	return err
}

func (s *MongoStore) GetAffiliate(ctx context.Context, id uuid.UUID) (*Affiliate, error) {
	return s.findAffiliate(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetAffiliateByCode(ctx context.Context, code string) (*Affiliate, error) {
	return s.findAffiliate(ctx, bson.M{"code": code})
}

func (s *MongoStore) findAffiliate(ctx context.Context, filter bson.M) (*Affiliate, error) {
	var doc affiliateDoc
	err := s.affiliates.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	return doc.toAffiliate()
}

func (s *MongoStore) SetAffiliateStatus(ctx context.Context, id uuid.UUID, status AffiliateStatus) error {
	res, err := s.affiliates.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrAffiliateNotFound
	}
	return nil
}

type commissionDoc struct {
	ID          string     `bson:"_id"`
	AffiliateID string     `bson:"affiliate_id"`
	OrderID     string     `bson:"order_id"`
	OrderTotal  int64      `bson:"order_total"`
	Level       int        `bson:"level"`
	Percent     float64    `bson:"percent"`
	Amount      int64      `bson:"amount"`
	Status      string     `bson:"status"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	ApprovedAt  *time.Time `bson:"approved_at,omitempty"`
}

func (d commissionDoc) toCommission() (*Commission, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	affiliateID, err := uuid.Parse(d.AffiliateID)
	if err != nil {
		return nil, err
	}
	return &Commission{
		ID:          id,
		AffiliateID: affiliateID,
		OrderID:     d.OrderID,
		OrderTotal:  d.OrderTotal,
		Level:       d.Level,
		Percent:     d.Percent,
		Amount:      d.Amount,
		Status:      CommissionStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ApprovedAt:  d.ApprovedAt,
	}, nil
}

func (s *MongoStore) RecordAccrual(ctx context.Context, c *Commission) error {
	doc := commissionDoc{
		ID:          c.ID.String(),
		AffiliateID: c.AffiliateID.String(),
		OrderID:     c.OrderID,
		OrderTotal:  c.OrderTotal,
		Level:       c.Level,
		Percent:     c.Percent,
		Amount:      c.Amount,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if _, err := s.commissions.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCommission
		}
		return err
	}

	res, err := s.affiliates.UpdateOne(ctx,
		bson.M{"_id": c.AffiliateID.String()},
		bson.M{
			"$inc": bson.M{"total_orders": 1},
			"$set": bson.M{"updated_at": c.CreatedAt},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Orphaned accrual: remove it again so retries see a clean slate.
		_, _ = s.commissions.DeleteOne(ctx, bson.M{"_id": doc.ID})
		return ErrAffiliateNotFound
	}
	return nil
}

func (s *MongoStore) GetCommission(ctx context.Context, id uuid.UUID) (*Commission, error) {
	return s.findCommission(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetCommissionByOrder(ctx context.Context, orderID string) (*Commission, error) {
	return s.findCommission(ctx, bson.M{"order_id": orderID})
}

func (s *MongoStore) findCommission(ctx context.Context, filter bson.M) (*Commission, error) {
	var doc commissionDoc
	err := s.commissions.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	return doc.toCommission()
}

func (s *MongoStore) ApproveCommission(ctx context.Context, id uuid.UUID, newLevel int, at time.Time) (bool, error) {
	var doc commissionDoc
	err := s.commissions.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(CommissionPending)},
		bson.M{"$set": bson.M{
			"status":      string(CommissionApproved),
			"approved_at": at,
			"updated_at":  at,
		}},
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.GetCommission(ctx, id); getErr != nil {
				return false, getErr
			}
			return false, nil
		}
		return false, err
	}

	_, err = s.affiliates.UpdateOne(ctx,
		bson.M{"_id": doc.AffiliateID},
		bson.M{
			"$inc": bson.M{
				"total_earnings":    doc.Amount,
				"available_balance": doc.Amount,
				"delivered_orders":  1,
			},
			"$max": bson.M{"current_level": newLevel},
			"$set": bson.M{"updated_at": at},
		})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) CancelCommission(ctx context.Context, id uuid.UUID, at time.Time) (CommissionStatus, bool, error) {
	var doc commissionDoc
	err := s.commissions.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": bson.M{"$ne": string(CommissionCancelled)}},
		bson.M{"$set": bson.M{
			"status":     string(CommissionCancelled),
			"updated_at": at,
		}},
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			current, getErr := s.GetCommission(ctx, id)
			if getErr != nil {
				return "", false, getErr
			}
			return current.Status, false, nil
		}
		return "", false, err
	}

	// FindOneAndUpdate returned the pre-update document.
	from := CommissionStatus(doc.Status)
	if from == CommissionApproved {
		_, err = s.affiliates.UpdateOne(ctx,
			bson.M{"_id": doc.AffiliateID},
			bson.M{
				"$inc": bson.M{
					"total_earnings":    -doc.Amount,
					"available_balance": -doc.Amount,
				},
				"$set": bson.M{"updated_at": at},
			})
		if err != nil {
			return "", false, err
		}
	}
	return from, true, nil
}

func (s *MongoStore) ListCommissions(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Commission, error) {
	cursor, err := s.commissions.Find(ctx,
		bson.M{"affiliate_id": affiliateID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Commission
	for cursor.Next(ctx) {
		var doc commissionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		c, err := doc.toCommission()
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, cursor.Err()
}

type withdrawalDoc struct {
	ID          string     `bson:"_id"`
	AffiliateID string     `bson:"affiliate_id"`
	Amount      int64      `bson:"amount"`
	Status      string     `bson:"status"`
	Method      string     `bson:"method"`
	Account     string     `bson:"account"`
	Note        string     `bson:"note,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
}

func (d withdrawalDoc) toWithdrawal() (*Withdrawal, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	affiliateID, err := uuid.Parse(d.AffiliateID)
	if err != nil {
		return nil, err
	}
	return &Withdrawal{
		ID:          id,
		AffiliateID: affiliateID,
		Amount:      d.Amount,
		Status:      WithdrawalStatus(d.Status),
		Method:      d.Method,
		Account:     d.Account,
		Note:        d.Note,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}, nil
}

func (s *MongoStore) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	doc := withdrawalDoc{
		ID:          w.ID.String(),
		AffiliateID: w.AffiliateID.String(),
		Amount:      w.Amount,
		Status:      string(w.Status),
		Method:      w.Method,
		Account:     w.Account,
		Note:        w.Note,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	_, err := s.withdrawals.InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	var doc withdrawalDoc
	err := s.withdrawals.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return doc.toWithdrawal()
}

func (s *MongoStore) SetWithdrawalStatus(ctx context.Context, id uuid.UUID, from, to WithdrawalStatus, note string, at time.Time) (bool, error) {
	set := bson.M{"status": string(to), "updated_at": at}
	if note != "" {
		set["note"] = note
	}
	res, err := s.withdrawals.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		if _, getErr := s.GetWithdrawal(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

func (s *MongoStore) CompleteWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var doc withdrawalDoc
	err := s.withdrawals.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(WithdrawalApproved)},
		bson.M{"$set": bson.M{
			"status":       string(WithdrawalCompleted),
			"completed_at": at,
			"updated_at":   at,
		}},
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.GetWithdrawal(ctx, id); getErr != nil {
				return false, getErr
			}
			return false, nil
		}
		return false, err
	}

	// Guarded decrement: only a balance that still covers the amount may be
	// drawn down. On failure the status flip is compensated back.
	res, err := s.affiliates.UpdateOne(ctx,
		bson.M{"_id": doc.AffiliateID, "available_balance": bson.M{"$gte": doc.Amount}},
		bson.M{
			"$inc": bson.M{
				"available_balance": -doc.Amount,
				"total_withdrawn":   doc.Amount,
			},
			"$set": bson.M{"updated_at": at},
		})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		_, _ = s.withdrawals.UpdateOne(ctx,
			bson.M{"_id": id.String(), "status": string(WithdrawalCompleted)},
			bson.M{"$set": bson.M{
				"status":       string(WithdrawalApproved),
				"completed_at": nil,
				"updated_at":   at,
			}})
		return false, ErrInsufficientBalance
	}
	return true, nil
}

func (s *MongoStore) ListWithdrawals(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Withdrawal, error) {
	cursor, err := s.withdrawals.Find(ctx,
		bson.M{"affiliate_id": affiliateID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Withdrawal
	for cursor.Next(ctx) {
		var doc withdrawalDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		w, err := doc.toWithdrawal()
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, cursor.Err()
}

var _ Store = (*MongoStore)(nil)
