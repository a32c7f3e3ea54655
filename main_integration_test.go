package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariocelzo/Target-sub000/internal/api"
	"github.com/mariocelzo/Target-sub000/internal/auth"
	"github.com/mariocelzo/Target-sub000/internal/config"
	"github.com/mariocelzo/Target-sub000/internal/db"
	"github.com/mariocelzo/Target-sub000/internal/feed"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

const integrationTestSecret = "integration-test-secret"

// newIntegrationServer wires the real router against the test database and
// serves it over httptest. SetupTestDB skips the test when MONGO_URI is unset.
func newIntegrationServer(t *testing.T) (*httptest.Server, *mongo.Database) {
	t.Helper()

	database := utils.SetupTestDB(t, "target_integration_test",
		"listings", "offers", "orders", "threads", "users")
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	cfg := &config.Config{
		JwtSecret:           integrationTestSecret,
		AcceptMaxRetries:    3,
		RateLimitBucketSize: 100,
		RateLimitRefillRate: 100,
	}

	server := httptest.NewServer(api.SetupRouter(cfg, database, nil, nil, feed.NewMemoryFeed()))
	t.Cleanup(server.Close)
	return server, database
}

// requireReplicaSet skips when the server cannot run multi-document
// transactions (acceptance needs them).
func requireReplicaSet(t *testing.T, database *mongo.Database) {
	t.Helper()
	var hello bson.M
	err := database.Client().Database("admin").
		RunCommand(context.Background(), bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	require.NoError(t, err)
	if _, ok := hello["setName"]; !ok {
		t.Skip("MongoDB transactions require a replica set; skipping")
	}
}

func seedUser(t *testing.T, database *mongo.Database, name string) utils.SixID {
	t.Helper()
	now := time.Now().UTC()
	user := models.User{
		Name:  name,
		Email: name + "@example.com",
		ShippingProfile: models.ShippingProfile{
			FullName: name,
			Address:  "Via Roma 1",
			City:     "Salerno",
			ZipCode:  "84100",
			Province: "SA",
		},
		NotificationPreferences: models.NotificationPreferences{Offer: true, Chat: true},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	user.GenIDIfEmpty()
	_, err := database.Collection("users").InsertOne(context.Background(), user)
	require.NoError(t, err)
	return user.ID
}

func bearerToken(t *testing.T, userID utils.SixID) string {
	t.Helper()
	token, err := auth.GenerateJWT(userID, integrationTestSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func unwrapData(t *testing.T, body []byte, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestIntegration_ListingAndOfferFlow(t *testing.T) {
	server, database := newIntegrationServer(t)

	sellerID := seedUser(t, database, "seller")
	buyerID := seedUser(t, database, "buyer")
	sellerToken := bearerToken(t, sellerID)
	buyerToken := bearerToken(t, buyerID)

	// Ping is public
	resp, body := doJSON(t, http.MethodGet, server.URL+"/v1/ping", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	// Seller publishes a listing
	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/listing", sellerToken, map[string]interface{}{
		"title":     "Vintage road bike",
		"price":     models.Price{Value: 100, CurrencyCode: "EUR"},
		"category":  "sports",
		"condition": "used",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var listing models.Listing
	unwrapData(t, body, &listing)
	require.False(t, listing.ID.IsZero())

	// Anyone can read it
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/listing/"+listing.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Mutations require auth
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", "",
		map[string]interface{}{"amount": models.Price{Value: 80, CurrencyCode: "EUR"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Buyer submits, then raises, an offer: still one document
	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken,
		map[string]interface{}{"amount": models.Price{Value: 80, CurrencyCode: "EUR"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	var offer models.Offer
	unwrapData(t, body, &offer)

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken,
		map[string]interface{}{"amount": models.Price{Value: 90, CurrencyCode: "EUR"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var raised models.Offer
	unwrapData(t, body, &raised)
	assert.Equal(t, offer.ID, raised.ID)
	assert.Equal(t, 90.0, raised.Amount.Value)

	// Only the owner may list offers
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", sellerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var offers []models.Offer
	unwrapData(t, body, &offers)
	require.Len(t, offers, 1)

	// Over-asking offers are rejected
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken,
		map[string]interface{}{"amount": models.Price{Value: 150, CurrencyCode: "EUR"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Withdrawal empties the ledger
	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = doJSON(t, http.MethodGet, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", sellerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	offers = nil
	unwrapData(t, body, &offers)
	assert.Empty(t, offers)
}

func TestIntegration_AcceptanceFlow(t *testing.T) {
	server, database := newIntegrationServer(t)
	requireReplicaSet(t, database)

	sellerID := seedUser(t, database, "seller")
	buyerID := seedUser(t, database, "buyer")
	sellerToken := bearerToken(t, sellerID)
	buyerToken := bearerToken(t, buyerID)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/v1/listing", sellerToken, map[string]interface{}{
		"title": "Vintage road bike",
		"price": models.Price{Value: 100, CurrencyCode: "EUR"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var listing models.Listing
	unwrapData(t, body, &listing)

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/offer", buyerToken,
		map[string]interface{}{"amount": models.Price{Value: 90, CurrencyCode: "EUR"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var offer models.Offer
	unwrapData(t, body, &offer)

	// Seller accepts: an order materializes with the buyer's shipping snapshot
	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/accept", sellerToken,
		map[string]interface{}{"offer_id": offer.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var order models.Order
	unwrapData(t, body, &order)
	assert.Equal(t, buyerID, order.BuyerID)
	assert.Equal(t, 90.0, order.Amount.Value)
	assert.Equal(t, "buyer", order.Shipping.FullName)

	// Second acceptance conflicts
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/listing/"+listing.ID.String()+"/accept", sellerToken,
		map[string]interface{}{"offer_id": offer.ID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// The buyer can fetch the order; a stranger cannot
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/order/"+order.ID.String(), buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	strangerToken := bearerToken(t, seedUser(t, database, "stranger"))
	resp, _ = doJSON(t, http.MethodGet, server.URL+"/v1/order/"+order.ID.String(), strangerToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_ChatFlow(t *testing.T) {
	server, database := newIntegrationServer(t)

	aliceID := seedUser(t, database, "alice")
	bobID := seedUser(t, database, "bob")
	aliceToken := bearerToken(t, aliceID)
	bobToken := bearerToken(t, bobID)

	// Opening from either side resolves to the same thread
	resp, body := doJSON(t, http.MethodPost, server.URL+"/v1/thread", aliceToken,
		map[string]interface{}{"peer_id": bobID})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	var thread models.Thread
	unwrapData(t, body, &thread)

	resp, body = doJSON(t, http.MethodPost, server.URL+"/v1/thread", bobToken,
		map[string]interface{}{"peer_id": aliceID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sameThread models.Thread
	unwrapData(t, body, &sameThread)
	assert.Equal(t, thread.ID, sameThread.ID)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/thread/"+thread.ID.String()+"/message", aliceToken,
		map[string]interface{}{"text": "Is the bike still available?"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/thread/"+thread.ID.String()+"/message", bobToken,
		map[string]interface{}{"text": "Yes, come have a look."})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/v1/thread", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var threads []models.Thread
	unwrapData(t, body, &threads)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].Messages, 2)
	assert.Equal(t, "Is the bike still available?", threads[0].Messages[0].Text)

	// Outsiders cannot post into the thread
	outsiderToken := bearerToken(t, seedUser(t, database, "carol"))
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/v1/thread/"+thread.ID.String()+"/message", outsiderToken,
		map[string]interface{}{"text": "let me in"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
