//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != 6 {
		t.Fatalf("products: got %d, want 6", len(products))
	}
}

func TestListProducts_Fields(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)

	var knife *productResponse
	for i := range products {
		if products[i].ID == "sku-chef-knife" {
			knife = &products[i]
			break
		}
	}

	if knife == nil {
		t.Fatal("product sku-chef-knife not found")
	}
	if knife.Title != "Chef's Knife 20cm" {
		t.Errorf("title: got %q, want %q", knife.Title, "Chef's Knife 20cm")
	}
	if knife.Price != 89.5 {
		t.Errorf("price: got %v, want 89.5", knife.Price)
	}
	if knife.SalePrice == nil || *knife.SalePrice != 74.99 {
		t.Errorf("salePrice: got %v, want 74.99", knife.SalePrice)
	}
	if knife.Image == "" {
		t.Error("image is empty")
	}
}

func TestListProducts_NoSalePriceOmitted(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	products := decodeJSON[[]productResponse](t, resp)
	for _, p := range products {
		if p.ID == "sku-espresso-machine" {
			if p.SalePrice != nil {
				t.Errorf("salePrice: got %v, want absent", *p.SalePrice)
			}
			return
		}
	}
	t.Fatal("product sku-espresso-machine not found")
}
