package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables owned by the engine in dependency order.  Catalog,
// payment method and settings rows are maintained by branch configuration;
// the engine only reads them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name        VARCHAR(160)   NOT NULL,
		category    VARCHAR(80)    NOT NULL DEFAULT '',
		base_price  DECIMAL(12,2)  NOT NULL,
		is_active   TINYINT(1)     NOT NULL DEFAULT 1,
		created_at  DATETIME       NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME       NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS variant_groups (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		item_id     BIGINT UNSIGNED NOT NULL,
		name        VARCHAR(80)     NOT NULL,
		position    INT             NOT NULL DEFAULT 0,
		CONSTRAINT fk_variant_groups_item FOREIGN KEY (item_id) REFERENCES catalog_items(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS variant_options (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		group_id        BIGINT UNSIGNED NOT NULL,
		name            VARCHAR(80)     NOT NULL,
		price_modifier  DECIMAL(12,2)   NOT NULL DEFAULT 0,
		position        INT             NOT NULL DEFAULT 0,
		CONSTRAINT fk_variant_options_group FOREIGN KEY (group_id) REFERENCES variant_groups(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS selection_groups (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		item_id      BIGINT UNSIGNED NOT NULL,
		name         VARCHAR(80)     NOT NULL,
		cardinality  ENUM('single','multi','optional') NOT NULL DEFAULT 'optional',
		position     INT             NOT NULL DEFAULT 0,
		CONSTRAINT fk_selection_groups_item FOREIGN KEY (item_id) REFERENCES catalog_items(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS selection_options (
		id        BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		group_id  BIGINT UNSIGNED NOT NULL,
		name      VARCHAR(80)     NOT NULL,
		price     DECIMAL(12,2)   NOT NULL DEFAULT 0,
		position  INT             NOT NULL DEFAULT 0,
		CONSTRAINT fk_selection_options_group FOREIGN KEY (group_id) REFERENCES selection_groups(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS addons (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		item_id       BIGINT UNSIGNED NOT NULL,
		name          VARCHAR(80)     NOT NULL,
		price         DECIMAL(12,2)   NOT NULL DEFAULT 0,
		is_available  TINYINT(1)      NULL,
		position      INT             NOT NULL DEFAULT 0,
		CONSTRAINT fk_addons_item FOREIGN KEY (item_id) REFERENCES catalog_items(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_resources (
		id                BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		kind              ENUM('table','room') NOT NULL DEFAULT 'table',
		label             VARCHAR(40)     NOT NULL,
		capacity          INT             NOT NULL,
		used_seats        INT             NOT NULL DEFAULT 0,
		status            ENUM('available','occupied','reserved') NOT NULL DEFAULT 'available',
		current_order_id  VARCHAR(64)     NULL,
		seat_shares       JSON            NULL,
		hold_count        INT             NOT NULL DEFAULT 0,
		version           INT UNSIGNED    NOT NULL DEFAULT 0,
		updated_at        DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seat_resources_label (label),
		CONSTRAINT chk_seat_resources_used CHECK (used_seats >= 0 AND used_seats <= capacity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id          BIGINT UNSIGNED PRIMARY KEY,
		room_id     BIGINT UNSIGNED NOT NULL,
		status      ENUM('pending','confirmed','checked_in','checked_out','cancelled') NOT NULL,
		check_in    DATETIME        NULL,
		check_out   DATETIME        NULL,
		guests      INT             NOT NULL DEFAULT 0,
		updated_at  DATETIME        NOT NULL,
		KEY idx_bookings_room (room_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                       VARCHAR(64)     NOT NULL PRIMARY KEY,
		order_number             VARCHAR(32)     NOT NULL,
		type                     ENUM('dine_in','delivery','takeaway','room_booking','room_service') NOT NULL,
		status                   ENUM('pending','paid','cancelled') NOT NULL DEFAULT 'pending',
		customer                 JSON            NULL,
		stay                     JSON            NULL,
		subtotal                 DECIMAL(12,2)   NOT NULL,
		discount                 DECIMAL(12,2)   NOT NULL DEFAULT 0,
		loyalty_points_redeemed  INT             NOT NULL DEFAULT 0,
		tax                      DECIMAL(12,2)   NOT NULL DEFAULT 0,
		delivery_fee             DECIMAL(12,2)   NOT NULL DEFAULT 0,
		total                    DECIMAL(12,2)   NOT NULL,
		payment_method           VARCHAR(32)     NULL,
		notes                    TEXT            NULL,
		resource_id              BIGINT UNSIGNED NULL,
		booking_id               BIGINT UNSIGNED NULL,
		guest_count              INT             NOT NULL DEFAULT 0,
		cancel_reason            VARCHAR(255)    NULL,
		terminal_id              VARCHAR(64)     NULL,
		created_at               DATETIME        NOT NULL,
		updated_at               DATETIME        NOT NULL,
		UNIQUE KEY uq_orders_number (order_number),
		KEY idx_orders_created (created_at),
		KEY idx_orders_resource (resource_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id           VARCHAR(64)     NOT NULL,
		line_id            VARCHAR(64)     NOT NULL,
		position           INT             NOT NULL,
		catalog_item_id    BIGINT UNSIGNED NOT NULL,
		name               VARCHAR(160)    NOT NULL,
		base_price         DECIMAL(12,2)   NOT NULL,
		unit_price         DECIMAL(12,2)   NOT NULL,
		quantity           INT             NOT NULL,
		note               VARCHAR(255)    NULL,
		modifiers_summary  VARCHAR(512)    NULL,
		category           VARCHAR(80)     NULL,
		choice             JSON            NULL,
		PRIMARY KEY (order_id, line_id),
		CONSTRAINT fk_order_lines_order FOREIGN KEY (order_id) REFERENCES orders(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS order_payments (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id    VARCHAR(64)   NOT NULL,
		method      VARCHAR(32)   NOT NULL,
		amount      DECIMAL(12,2) NOT NULL,
		received    DECIMAL(12,2) NOT NULL,
		change_due  DECIMAL(12,2) NOT NULL DEFAULT 0,
		created_at  DATETIME      NOT NULL,
		CONSTRAINT fk_order_payments_order FOREIGN KEY (order_id) REFERENCES orders(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS loyalty_accounts (
		customer_id  VARCHAR(64)  NOT NULL PRIMARY KEY,
		phone        VARCHAR(32)  NULL,
		points       INT          NOT NULL DEFAULT 0,
		updated_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_loyalty_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payment_methods (
		code                    VARCHAR(32) NOT NULL PRIMARY KEY,
		name                    VARCHAR(80) NOT NULL,
		allows_change_due       TINYINT(1)  NOT NULL DEFAULT 0,
		allows_partial_payment  TINYINT(1)  NOT NULL DEFAULT 0,
		position                INT         NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS settings (
		name   VARCHAR(64)  NOT NULL PRIMARY KEY,
		value  VARCHAR(255) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// seed installs the two tender methods every branch starts with.  Existing
// rows are left untouched.
var seed = []string{
	`INSERT IGNORE INTO payment_methods (code, name, allows_change_due, allows_partial_payment, position)
	 VALUES ('cash', 'Cash', 1, 1, 0), ('card', 'Card', 0, 1, 1)`,
}

// Migrate creates missing tables.  Statements are idempotent so it runs on
// every start when DB_MIGRATE is enabled.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	for _, stmt := range seed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}
