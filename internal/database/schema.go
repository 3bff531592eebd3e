package database

const schema = `
CREATE TABLE IF NOT EXISTS bots (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    owner_admin_id BIGINT NOT NULL,
    encrypted_token VARBINARY(512) NOT NULL,
    username VARCHAR(255) NOT NULL,
    webhook_secret VARCHAR(128) NOT NULL,
    is_active TINYINT NOT NULL DEFAULT 1,
    associated_offer_id BIGINT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_bot_username (username)
);

CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    telegram_user_id BIGINT NOT NULL,
    first_interaction TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_interaction TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_bot_telegram_user (bot_id, telegram_user_id),
    FOREIGN KEY (bot_id) REFERENCES bots(id)
);

CREATE TABLE IF NOT EXISTS phases (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    prompt_text TEXT NOT NULL,
    trigger_terms TEXT NOT NULL,
    ordering INT NOT NULL DEFAULT 0,
    is_general TINYINT NOT NULL DEFAULT 0,
    FOREIGN KEY (bot_id) REFERENCES bots(id)
);

CREATE TABLE IF NOT EXISTS sessions (
    bot_id BIGINT NOT NULL,
    user_telegram_id BIGINT NOT NULL,
    current_phase_id BIGINT NOT NULL,
    history_json MEDIUMTEXT NOT NULL,
    last_active_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    inactivity_version BIGINT NOT NULL DEFAULT 0,
    history_version BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (bot_id, user_telegram_id)
);

CREATE TABLE IF NOT EXISTS blocks (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    container_kind VARCHAR(32) NOT NULL,
    container_id BIGINT NOT NULL,
    ordering INT NOT NULL,
    text MEDIUMTEXT,
    media_ref VARCHAR(512),
    media_kind VARCHAR(16) NOT NULL DEFAULT '',
    delay_seconds INT NOT NULL DEFAULT 0,
    auto_delete_seconds INT NOT NULL DEFAULT 0,
    UNIQUE KEY uniq_container_order (container_kind, container_id, ordering)
);

CREATE TABLE IF NOT EXISTS media_cache_entries (
    bot_id BIGINT NOT NULL,
    original_media_id VARCHAR(255) NOT NULL,
    cached_media_id VARCHAR(255) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (bot_id, original_media_id)
);

CREATE TABLE IF NOT EXISTS offers (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    price_amount_cents BIGINT NOT NULL,
    price_currency VARCHAR(8) NOT NULL DEFAULT 'BRL',
    manual_verification_trigger VARCHAR(255) NOT NULL DEFAULT '',
    discount_trigger VARCHAR(255) NOT NULL DEFAULT '',
    is_active TINYINT NOT NULL DEFAULT 1,
    UNIQUE KEY uniq_offer_bot_name (bot_id, name),
    FOREIGN KEY (bot_id) REFERENCES bots(id)
);

CREATE TABLE IF NOT EXISTS upsells (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    ordinal INT NOT NULL,
    is_preset TINYINT NOT NULL DEFAULT 0,
    trigger_term VARCHAR(255) NOT NULL DEFAULT '',
    phase_prompt TEXT,
    price_amount_cents BIGINT NOT NULL,
    price_currency VARCHAR(8) NOT NULL DEFAULT 'BRL',
    schedule_immediate TINYINT NOT NULL DEFAULT 1,
    schedule_days INT NOT NULL DEFAULT 0,
    schedule_hours INT NOT NULL DEFAULT 0,
    schedule_minutes INT NOT NULL DEFAULT 0,
    FOREIGN KEY (bot_id) REFERENCES bots(id)
);

CREATE TABLE IF NOT EXISTS actions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    track_usage TINYINT NOT NULL DEFAULT 0,
    UNIQUE KEY uniq_action_bot_name (bot_id, name),
    FOREIGN KEY (bot_id) REFERENCES bots(id)
);

CREATE TABLE IF NOT EXISTS action_statuses (
    bot_id BIGINT NOT NULL,
    user_telegram_id BIGINT NOT NULL,
    action_id BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'INACTIVE',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (bot_id, user_telegram_id, action_id)
);

CREATE TABLE IF NOT EXISTS recovery_campaigns (
    bot_id BIGINT NOT NULL PRIMARY KEY,
    inactivity_threshold_seconds INT NOT NULL DEFAULT 600,
    timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
    ignore_paying_users TINYINT NOT NULL DEFAULT 1,
    is_active TINYINT NOT NULL DEFAULT 1,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS recovery_steps (
    campaign_bot_id BIGINT NOT NULL,
    ordinal INT NOT NULL,
    schedule_kind VARCHAR(32) NOT NULL,
    schedule_seconds INT NOT NULL DEFAULT 0,
    schedule_time_of_day VARCHAR(8) NOT NULL DEFAULT '',
    schedule_days_offset INT NOT NULL DEFAULT 0,
    PRIMARY KEY (campaign_bot_id, ordinal)
);

CREATE TABLE IF NOT EXISTS recovery_deliveries (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    campaign_version BIGINT NOT NULL,
    episode_id VARCHAR(64) NOT NULL,
    step_ordinal INT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'scheduled',
    scheduled_for TIMESTAMP NOT NULL,
    sent_at TIMESTAMP NULL,
    UNIQUE KEY uniq_delivery (bot_id, user_id, episode_id, step_ordinal)
);

CREATE TABLE IF NOT EXISTS pix_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    offer_id BIGINT NULL,
    upsell_id BIGINT NULL,
    tracker_id BIGINT NULL,
    amount_cents BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'created',
    external_id VARCHAR(128) NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    paid_at TIMESTAMP NULL,
    UNIQUE KEY uniq_pix_external (external_id)
);

CREATE TABLE IF NOT EXISTS sale_notifications (
    transaction_id BIGINT NOT NULL PRIMARY KEY,
    owner_admin_id BIGINT NOT NULL,
    channel_id BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credit_wallets (
    admin_id BIGINT NOT NULL PRIMARY KEY,
    balance_cents BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS credit_ledger (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    admin_id BIGINT NOT NULL,
    delta_cents BIGINT NOT NULL,
    category VARCHAR(16) NOT NULL,
    ref VARCHAR(255) NOT NULL DEFAULT '',
    ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_ledger_admin (admin_id)
);

CREATE TABLE IF NOT EXISTS trackers (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    code VARCHAR(16) NOT NULL,
    name VARCHAR(255) NOT NULL,
    is_active TINYINT NOT NULL DEFAULT 1,
    UNIQUE KEY uniq_tracker_bot_code (bot_id, code)
);

CREATE TABLE IF NOT EXISTS tracker_attributions (
    bot_id BIGINT NOT NULL,
    user_telegram_id BIGINT NOT NULL,
    tracker_id BIGINT NOT NULL,
    ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (bot_id, user_telegram_id)
);

CREATE TABLE IF NOT EXISTS tracker_daily_stats (
    bot_id BIGINT NOT NULL,
    tracker_id BIGINT NOT NULL,
    day DATE NOT NULL,
    starts BIGINT NOT NULL DEFAULT 0,
    sales BIGINT NOT NULL DEFAULT 0,
    revenue_cents BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (bot_id, tracker_id, day)
);

CREATE TABLE IF NOT EXISTS bot_tracking_configs (
    bot_id BIGINT NOT NULL PRIMARY KEY,
    require_tracked_start TINYINT NOT NULL DEFAULT 0,
    last_forced_at TIMESTAMP NULL
);

CREATE TABLE IF NOT EXISTS start_templates (
    bot_id BIGINT NOT NULL PRIMARY KEY,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS upsell_deliveries (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    bot_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    upsell_id BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'scheduled',
    scheduled_for TIMESTAMP NOT NULL,
    sent_at TIMESTAMP NULL,
    UNIQUE KEY uniq_upsell_delivery (bot_id, user_id, upsell_id)
);

CREATE TABLE IF NOT EXISTS start_message_statuses (
    bot_id BIGINT NOT NULL,
    user_telegram_id BIGINT NOT NULL,
    version BIGINT NOT NULL,
    sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (bot_id, user_telegram_id)
);
`
