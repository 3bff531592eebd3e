// Package models holds the core entities shared across repositories and
// services: bots, users, sessions, content blocks, offers, upsells,
// recovery campaigns, transactions, credits, and trackers.
package models

import "time"

// MediaKind enumerates the media types a Block may carry.
type MediaKind string

const (
	MediaKindNone      MediaKind = ""
	MediaKindPhoto     MediaKind = "photo"
	MediaKindVideo     MediaKind = "video"
	MediaKindVoice     MediaKind = "voice"
	MediaKindDocument  MediaKind = "document"
	MediaKindAnimation MediaKind = "animation"
)

// ContainerKind discriminates the polymorphic owner of a Block sequence.
type ContainerKind string

const (
	ContainerStartTemplate      ContainerKind = "start_template"
	ContainerOfferPitch         ContainerKind = "offer_pitch"
	ContainerOfferDeliverable   ContainerKind = "offer_deliverable"
	ContainerOfferManualVerify  ContainerKind = "offer_manual_verification"
	ContainerAction             ContainerKind = "action"
	ContainerUpsellAnnouncement ContainerKind = "upsell_announcement"
	ContainerUpsellDeliverable  ContainerKind = "upsell_deliverable"
	ContainerRecoveryStep       ContainerKind = "recovery_step"
	ContainerNegotiatedDiscount ContainerKind = "negotiated_discount"
)

// Bot is a secondary (or manager) bot owned by an admin.
type Bot struct {
	ID                int64
	OwnerAdminID      int64
	EncryptedToken    []byte
	Username          string
	WebhookSecret     string
	IsActive          bool
	AssociatedOfferID *int64
	CreatedAt         time.Time
}

// User is an end user of a secondary bot, unique per (bot, telegram user id).
type User struct {
	ID               int64
	BotID            int64
	TelegramUserID   int64
	FirstInteraction time.Time
	LastInteraction  time.Time
}

// HistoryTurn is one entry in a Session's bounded conversation history.
type HistoryTurn struct {
	Role     string // "user" | "assistant"
	Text     string
	MediaRef string
	Ts       time.Time
}

// Session tracks the live conversational state for a (bot, user) pair.
type Session struct {
	BotID             int64
	UserTelegramID    int64
	CurrentPhaseID    int64
	History           []HistoryTurn
	LastActiveAt      time.Time
	InactivityVersion int64
	HistoryVersion    int64 // optimistic CAS counter, spec §5 ordering guarantee
}

// Phase is a named prompt + trigger-term set the LLM operates under.
type Phase struct {
	ID           int64
	BotID        int64
	Name         string
	PromptText   string
	TriggerTerms []string
	Ordering     int
	IsGeneral    bool
}

// Block is one ordered content fragment belonging to a Container.
type Block struct {
	ID                int64
	ContainerKind     ContainerKind
	ContainerID       int64
	Order             int
	Text              string
	MediaRef          string
	MediaKind         MediaKind
	DelaySeconds      int // 0..300
	AutoDeleteSeconds int // 0..86400
}

// MediaCacheEntry maps an origin bot's media identifier to a resend-ready
// cached identifier. Invalidated explicitly on "identifier expired".
type MediaCacheEntry struct {
	BotID           int64
	OriginalMediaID string
	CachedMediaID   string
	UpdatedAt       time.Time
}

// Price is an amount expressed in a currency's minor units (cents).
type Price struct {
	AmountCents int64
	Currency    string
}

// Offer is a sellable entity detected via case-insensitive name containment.
type Offer struct {
	ID                        int64
	BotID                     int64
	Name                      string
	Price                     Price
	ManualVerificationTrigger string
	DiscountTrigger           string
	IsActive                  bool
}

// UpsellSchedule describes when an upsell fires relative to sale time.
type UpsellSchedule struct {
	Immediate bool
	Days      int
	Hours     int
	Minutes   int
}

// Upsell is a post-sale offer, either preset-immediate or scheduled.
type Upsell struct {
	ID          int64
	BotID       int64
	Ordinal     int
	IsPreset    bool
	TriggerTerm string
	PhasePrompt string
	Price       Price
	Schedule    UpsellSchedule
}

// Action is a named trigger-library entry the LLM output may activate.
type Action struct {
	ID         int64
	BotID      int64
	Name       string
	TrackUsage bool
}

// ActionStatus tracks per-session action activation (INACTIVE -> ACTIVATED).
type ActionStatus string

const (
	ActionStatusInactive  ActionStatus = "INACTIVE"
	ActionStatusActivated ActionStatus = "ACTIVATED"
)

// RecoveryCampaign is the single per-bot inactivity recovery configuration.
type RecoveryCampaign struct {
	BotID                  int64
	InactivityThresholdSec int
	Timezone               string
	IgnorePayingUsers      bool
	IsActive               bool
	Version                int64
}

// ScheduleKind discriminates a RecoveryStep's schedule expression shape.
type ScheduleKind string

const (
	ScheduleRelative     ScheduleKind = "relative"
	ScheduleNextDayAt    ScheduleKind = "next_day_time"
	ScheduleOffsetDaysAt ScheduleKind = "plus_days_time"
)

// RecoveryStep is one ordinal step of a RecoveryCampaign.
type RecoveryStep struct {
	CampaignBotID      int64
	Ordinal            int
	ScheduleKind       ScheduleKind
	ScheduleSeconds    int
	ScheduleTimeOfDay  string // "HH:MM"
	ScheduleDaysOffset int
}

// DeliveryStatus is the lifecycle of a scheduled block delivery.
type DeliveryStatus string

const (
	DeliveryScheduled DeliveryStatus = "scheduled"
	DeliverySent      DeliveryStatus = "sent"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// RecoveryDelivery is one (bot,user,campaign_version,episode,step) row.
type RecoveryDelivery struct {
	ID              int64
	BotID           int64
	UserID          int64
	CampaignVersion int64
	EpisodeID       string
	StepOrdinal     int
	Status          DeliveryStatus
	ScheduledFor    time.Time
	SentAt          *time.Time
}

// UpsellDelivery is one pre-saved (bot,user,upsell) row created when the
// first paid transaction activates the upsell flow (spec §4.8 step 4),
// claimed by the periodic sweep once scheduled_for elapses.
type UpsellDelivery struct {
	ID           int64
	BotID        int64
	UserID       int64
	UpsellID     int64
	Status       DeliveryStatus
	ScheduledFor time.Time
	SentAt       *time.Time
}

// PixStatus is the lifecycle of a PixTransaction.
type PixStatus string

const (
	PixCreated   PixStatus = "created"
	PixPending   PixStatus = "pending"
	PixPaid      PixStatus = "paid"
	PixDelivered PixStatus = "delivered"
	PixExpired   PixStatus = "expired"
	PixFailed    PixStatus = "failed"
)

// PixTransaction is a payment intent tracked against the gateway.
type PixTransaction struct {
	ID          int64
	BotID       int64
	UserID      int64
	OfferID     *int64
	UpsellID    *int64
	TrackerID   *int64
	AmountCents int64
	Status      PixStatus
	ExternalID  string
	CreatedAt   time.Time
	PaidAt      *time.Time
}

// SaleNotificationStatus is the lifecycle of a SaleNotification.
type SaleNotificationStatus string

const (
	NotificationPending SaleNotificationStatus = "pending"
	NotificationSent    SaleNotificationStatus = "sent"
	NotificationSkipped SaleNotificationStatus = "skipped"
	NotificationFailed  SaleNotificationStatus = "failed"
)

// SaleNotification enforces the exactly-once admin notification per tx.
type SaleNotification struct {
	TransactionID int64
	OwnerAdminID  int64
	ChannelID     int64
	Status        SaleNotificationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreditCategory classifies a CreditLedger entry.
type CreditCategory string

const (
	CreditCategoryText    CreditCategory = "text"
	CreditCategoryWhisper CreditCategory = "whisper"
	CreditCategoryTopup   CreditCategory = "topup"
	CreditCategoryRefund  CreditCategory = "refund"
)

// CreditWallet is the per-admin BRL balance.
type CreditWallet struct {
	AdminID      int64
	BalanceCents int64
}

// CreditLedgerEntry is one append-only ledger row.
type CreditLedgerEntry struct {
	ID         int64
	AdminID    int64
	DeltaCents int64
	Category   CreditCategory
	Ref        string
	Ts         time.Time
}

// Tracker is a short attribution code attached to a /start deep link.
type Tracker struct {
	ID       int64
	BotID    int64
	Code     string
	Name     string
	IsActive bool
}

// TrackerAttribution links a user to the tracker that brought them in.
type TrackerAttribution struct {
	BotID          int64
	UserTelegramID int64
	TrackerID      int64
	Ts             time.Time
}

// TrackerDailyStat aggregates starts/sales/revenue per (bot,tracker,day).
type TrackerDailyStat struct {
	BotID        int64
	TrackerID    int64
	Day          time.Time
	Starts       int64
	Sales        int64
	RevenueCents int64
}

// BotTrackingConfig controls whether untracked /start messages are dropped.
type BotTrackingConfig struct {
	BotID               int64
	RequireTrackedStart bool
	LastForcedAt        *time.Time
}

// StartTemplate is the versioned sequence of blocks sent on first contact.
type StartTemplate struct {
	BotID   int64
	Version int64
	Blocks  []Block
}

// StartMessageStatus records which StartTemplate version a user received.
type StartMessageStatus struct {
	BotID          int64
	UserTelegramID int64
	Version        int64
	SentAt         time.Time
}
