package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductSold indicates the product already has a buyer.
	ErrProductSold = errors.New("product already sold")
	// ErrOwnProduct indicates a seller tried to buy their own product.
	ErrOwnProduct = errors.New("cannot buy own product")
	// ErrProductUnavailable indicates the product was sold concurrently.
	ErrProductUnavailable = errors.New("product no longer available")
	// ErrAlreadyWishlisted indicates the product is already on the wishlist.
	ErrAlreadyWishlisted = errors.New("product already in wishlist")
	// ErrInvalidImage indicates the uploaded bytes are not an image.
	ErrInvalidImage = errors.New("not an image")
)

// BcryptCost is the cost used for new password hashes. Tests lower it.
var BcryptCost = bcrypt.DefaultCost

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Connection pragmas, applied by the driver to every pooled connection.
var pragmas = []string{
	// WAL allows multiple readers and one writer at the same time
	"journal_mode(WAL)",
	// Wait and retry instead of failing immediately with SQLITE_BUSY
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := openWithPragmas(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// SQLite allows one writer; funnel all writes through one connection
	writeConn, err := openWithPragmas(path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	db := &DB{
		conn:      conn,
		writeConn: writeConn,
	}

	if err := db.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func openWithPragmas(path string) (*sql.DB, error) {
	params := make([]string, len(pragmas))
	for i, pragma := range pragmas {
		params[i] = "_pragma=" + pragma
	}
	conn, err := sql.Open("sqlite", path+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_active INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	price REAL NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	image BLOB,
	image_type TEXT,
	seller TEXT NOT NULL REFERENCES users(username),
	buyer TEXT REFERENCES users(username),
	created_at INTEGER NOT NULL,
	sold_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller);
CREATE INDEX IF NOT EXISTS idx_products_unsold ON products(id) WHERE buyer IS NULL;

CREATE TABLE IF NOT EXISTS ratings (
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	username TEXT NOT NULL REFERENCES users(username),
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	created_at INTEGER NOT NULL,
	PRIMARY KEY (product_id, username)
);

CREATE TABLE IF NOT EXISTS wishlist (
	username TEXT NOT NULL REFERENCES users(username),
	product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (username, product_id)
);
`
	_, err := db.writeConn.Exec(schema)
	return err
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser registers a new user, storing a bcrypt hash of the password.
func (db *DB) CreateUser(username, password, name, email string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := nowMillis()
	_, err = db.writeConn.Exec(`
		INSERT INTO users (username, password_hash, name, email, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, username, string(hash), name, email, now, now)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	return err
}

// VerifyCredential reports whether password matches the stored hash.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (db *DB) VerifyCredential(username, password string) (bool, error) {
	var hash string
	err := db.conn.QueryRow(`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// UserExists reports whether a username is registered.
func (db *DB) UserExists(username string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	return exists, err
}

func (db *DB) requireUser(username string) error {
	exists, err := db.UserExists(username)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

// GetUser loads a user profile.
func (db *DB) GetUser(username string) (*User, error) {
	var u User
	err := db.conn.QueryRow(`
		SELECT username, name, email, created_at, last_active
		FROM users
		WHERE username = ?
	`, username).Scan(&u.Username, &u.Name, &u.Email, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchUser records activity for a user.
func (db *DB) TouchUser(username string) error {
	_, err := db.writeConn.Exec(`UPDATE users SET last_active = ? WHERE username = ?`, nowMillis(), username)
	return err
}

const productSelect = `
	SELECT p.id, p.name, p.description, p.price, p.category, p.seller, p.buyer,
	       p.image IS NOT NULL, COALESCE(AVG(r.rating), 0), COUNT(r.rating), p.created_at
	FROM products p
	LEFT JOIN ratings r ON r.product_id = p.id
`

func scanProducts(rows *sql.Rows) ([]*Product, error) {
	defer rows.Close()

	products := []*Product{}
	for rows.Next() {
		p := &Product{}
		var buyer sql.NullString
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.Category,
			&p.Seller,
			&buyer,
			&p.HasImage,
			&p.AvgRating,
			&p.RatingCount,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		if buyer.Valid {
			p.Buyer = &buyer.String
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListProducts returns the products still for sale that match filter.
func (db *DB) ListProducts(filter ProductFilter) ([]*Product, error) {
	where := []string{"p.buyer IS NULL"}
	var args []any
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + likeEscaper.Replace(q) + "%"
		where = append(where, `(p.name LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\' OR p.category LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		where = append(where, "p.category = ? COLLATE NOCASE")
		args = append(args, c)
	}

	rows, err := db.conn.Query(productSelect+`
		WHERE `+strings.Join(where, " AND ")+`
		GROUP BY p.id
		ORDER BY p.id
	`, args...)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

// UserProducts returns every product a user has listed, sold or not.
func (db *DB) UserProducts(username string) ([]*Product, error) {
	if err := db.requireUser(username); err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(productSelect+`
		WHERE p.seller = ?
		GROUP BY p.id
		ORDER BY p.id
	`, username)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

// GetProduct loads a single product.
func (db *DB) GetProduct(id int64) (*Product, error) {
	rows, err := db.conn.Query(productSelect+`
		WHERE p.id = ?
		GROUP BY p.id
	`, id)
	if err != nil {
		return nil, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return products[0], nil
}

// AddProduct lists a new product and returns its id. Image bytes, if any,
// must sniff as an image type.
func (db *DB) AddProduct(p NewProduct) (int64, error) {
	var image any
	var imageType any
	if len(p.Image) > 0 {
		mt := mimetype.Detect(p.Image)
		if !strings.HasPrefix(mt.String(), "image/") {
			return 0, ErrInvalidImage
		}
		image = p.Image
		imageType = mt.String()
	}

	if err := db.requireUser(p.Seller); err != nil {
		return 0, err
	}

	result, err := db.writeConn.Exec(`
		INSERT INTO products (name, description, price, category, image, image_type, seller, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Description, p.Price, p.Category, image, imageType, p.Seller, nowMillis())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ProductImage returns the stored image and its MIME type. A product listed
// without an image yields nil data.
func (db *DB) ProductImage(id int64) ([]byte, string, error) {
	var image []byte
	var imageType sql.NullString
	err := db.conn.QueryRow(`SELECT image, image_type FROM products WHERE id = ?`, id).Scan(&image, &imageType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrProductNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return image, imageType.String, nil
}

// BuyProduct assigns a buyer to an unsold product. Exactly one of any number
// of concurrent buyers succeeds.
func (db *DB) BuyProduct(productID int64, buyer string) error {
	tx, err := db.writeConn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seller string
	var currentBuyer sql.NullString
	err = tx.QueryRow(`SELECT seller, buyer FROM products WHERE id = ?`, productID).Scan(&seller, &currentBuyer)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return err
	}

	if currentBuyer.Valid {
		return ErrProductSold
	}
	if seller == buyer {
		return ErrOwnProduct
	}

	var buyerExists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, buyer).Scan(&buyerExists); err != nil {
		return err
	}
	if !buyerExists {
		return ErrUserNotFound
	}

	result, err := tx.Exec(`
		UPDATE products
		SET buyer = ?, sold_at = ?
		WHERE id = ? AND buyer IS NULL
	`, buyer, nowMillis(), productID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductUnavailable
	}

	return tx.Commit()
}

// RateProduct records a 1-5 rating. A user's later rating replaces their
// earlier one.
func (db *DB) RateProduct(productID int64, username string, rating int) error {
	if _, err := db.GetProduct(productID); err != nil {
		return err
	}
	_, err := db.writeConn.Exec(`
		INSERT INTO ratings (product_id, username, rating, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (product_id, username) DO UPDATE SET rating = excluded.rating, created_at = excluded.created_at
	`, productID, username, rating, nowMillis())
	return err
}

// AddToWishlist puts a product on a user's wishlist.
func (db *DB) AddToWishlist(username string, productID int64) error {
	if _, err := db.GetProduct(productID); err != nil {
		return err
	}
	_, err := db.writeConn.Exec(`
		INSERT INTO wishlist (username, product_id, created_at)
		VALUES (?, ?, ?)
	`, username, productID, nowMillis())
	if isUniqueViolation(err) {
		return ErrAlreadyWishlisted
	}
	return err
}

// RemoveFromWishlist removes a wishlist entry. Removing an absent entry is
// not an error.
func (db *DB) RemoveFromWishlist(username string, productID int64) error {
	_, err := db.writeConn.Exec(`DELETE FROM wishlist WHERE username = ? AND product_id = ?`, username, productID)
	return err
}

// Wishlist returns the products on a user's wishlist in the order they were added.
func (db *DB) Wishlist(username string) ([]*Product, error) {
	if err := db.requireUser(username); err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(`
		SELECT p.id, p.name, p.description, p.price, p.category, p.seller, p.buyer,
		       p.image IS NOT NULL, COALESCE(AVG(r.rating), 0), COUNT(r.rating), p.created_at
		FROM wishlist w
		JOIN products p ON p.id = w.product_id
		LEFT JOIN ratings r ON r.product_id = p.id
		WHERE w.username = ?
		GROUP BY p.id
		ORDER BY MIN(w.rowid)
	`, username)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}
