package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetItemImage stores the image for an item, replacing any previous one.
func SetItemImage(ctx context.Context, db *sql.DB, itemID int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO item_media (item_id, image, image_mime) VALUES (?, ?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET image = excluded.image, image_mime = excluded.image_mime,
		     updated_at = CURRENT_TIMESTAMP`,
		itemID, image, mime,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sql.DB, itemID int64) ([]byte, string, error) {
	var image []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM item_media WHERE item_id = ?`, itemID,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime, nil
}
