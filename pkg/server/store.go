//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

package server

import "github.com/aeolun/auboutique/pkg/database"

// Store is the persistence the server needs for accounts and the catalog.
// *database.DB implements it.
type Store interface {
	CreateUser(username, password, name, email string) error
	VerifyCredential(username, password string) (bool, error)
	UserExists(username string) (bool, error)
	GetUser(username string) (*database.User, error)
	TouchUser(username string) error

	ListProducts(filter database.ProductFilter) ([]*database.Product, error)
	UserProducts(username string) ([]*database.Product, error)
	AddProduct(p database.NewProduct) (int64, error)
	ProductImage(id int64) ([]byte, string, error)
	BuyProduct(productID int64, buyer string) error
	RateProduct(productID int64, username string, rating int) error

	AddToWishlist(username string, productID int64) error
	RemoveFromWishlist(username string, productID int64) error
	Wishlist(username string) ([]*database.Product, error)

	Close() error
}

var _ Store = (*database.DB)(nil)
