package models

type UserRole string
type SubscriptionStatus string
type SubscriptionTier string
type BillingCycle string
type PaymentStatus string

type ContactStatus string
type TaskStatus string
type TaskPriority string
type OpportunityStatus string
type CampaignType string
type CampaignStatus string
type ConversationStatus string
type Channel string
type MessageDirection string
type MessageStatus string

const (
	UserRoleUser   UserRole = "user"
	UserRoleAdmin  UserRole = "admin"
	UserRoleMaster UserRole = "master"

	SubscriptionStatusTrial   SubscriptionStatus = "trial"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"

	TierStarter      SubscriptionTier = "starter"
	TierProfessional SubscriptionTier = "professional"
	TierBusiness     SubscriptionTier = "business"
	TierEnterprise   SubscriptionTier = "enterprise"
	TierWhiteLabel   SubscriptionTier = "white_label"

	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"

	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

const (
	ContactStatusActive   ContactStatus = "active"
	ContactStatusInactive ContactStatus = "inactive"
	ContactStatusArchived ContactStatus = "archived"

	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"

	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"

	OpportunityStatusOpen OpportunityStatus = "open"
	OpportunityStatusWon  OpportunityStatus = "won"
	OpportunityStatusLost OpportunityStatus = "lost"

	CampaignTypeEmail CampaignType = "email"
	CampaignTypeSMS   CampaignType = "sms"
	CampaignTypeMixed CampaignType = "mixed"

	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"

	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusClosed   ConversationStatus = "closed"
	ConversationStatusArchived ConversationStatus = "archived"

	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelChat   Channel = "chat"
	ChannelPhone  Channel = "phone"
	ChannelSocial Channel = "social"

	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"

	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)
