package api

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/haszKEJL/Projekt-PAI/internal/blob"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"github.com/haszKEJL/Projekt-PAI/internal/services"
	"github.com/haszKEJL/Projekt-PAI/internal/signature"
	"github.com/haszKEJL/Projekt-PAI/internal/store"
	"github.com/haszKEJL/Projekt-PAI/pkg/metrics"
)

type apiFixture struct {
	router *Router
	auth   *services.AuthService
	db     *gorm.DB
	key    *rsa.PrivateKey
	pub    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(&models.User{}, &models.SignatureRecord{}))

	blobs, err := blob.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	records := store.NewRecordStore(database, blobs, logger)
	pending := store.NewPendingStore(blobs, 30*time.Minute, time.Hour, logger)
	t.Cleanup(pending.Close)

	auth := services.NewAuthService(database, "test-secret", time.Hour, 4, logger)
	signing := services.NewSigningService(records, pending, blobs, logger, metrics.NewMetricsCollector())

	router := NewRouter(logger, metrics.NewMetricsCollector(), auth, signing, records)
	router.SetupRoutes()
	t.Cleanup(router.Close)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := signature.EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)

	return &apiFixture{router: router, auth: auth, db: database, key: key, pub: pub}
}

func (f *apiFixture) createUser(t *testing.T, username, password string, role models.UserRole) {
	t.Helper()
	hash, err := f.auth.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		ActiveStatus: true,
	}).Error)
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.GetEngine().ServeHTTP(w, req)
	return w
}

func (f *apiFixture) token(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest("POST", "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["access_token"].(string)
}

func multipartBody(t *testing.T, fileField, filename string, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		part, err := mw.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func testPDF(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := map[int]int{}
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	buf.WriteString("%PDF-1.4\n")
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>")
	writeObj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	xref := buf.Len()
	buf.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func signHash(t *testing.T, key *rsa.PrivateKey, contentHashB64 string) string {
	t.Helper()
	hashBytes, err := base64.StdEncoding.DecodeString(contentHashB64)
	require.NoError(t, err)
	digest := sha256.Sum256(hashBytes)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: signature.SaltLength,
		Hash:       crypto.SHA256,
	})
	require.NoError(t, err)
	return signature.EncodeSignature(sig)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"up"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestTokenEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.createUser(t, "signer", "password123", models.RoleUser)

	token := f.token(t, "signer", "password123")
	assert.NotEmpty(t, token)

	body, _ := json.Marshal(map[string]string{"username": "signer", "password": "wrong"})
	req := httptest.NewRequest("POST", "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrepareRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	body, contentType := multipartBody(t, "file", "doc.pdf", testPDF(t, "BT (x) Tj ET"), nil)
	req := httptest.NewRequest("POST", "/api/signature/prepare", body)
	req.Header.Set("Content-Type", contentType)
	w := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSigningFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.createUser(t, "signer", "password123", models.RoleUser)
	f.createUser(t, "admin", "password123", models.RoleAdmin)
	token := f.token(t, "signer", "password123")
	doc := testPDF(t, "BT (http flow) Tj ET")

	// Prepare.
	body, contentType := multipartBody(t, "file", "doc.pdf", doc, nil)
	req := httptest.NewRequest("POST", "/api/signature/prepare", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var prepared struct {
		ContentHash   string `json:"content_hash"`
		PendingHandle string `json:"pending_handle"`
		FallbackHash  bool   `json:"fallback_hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prepared))
	assert.False(t, prepared.FallbackHash)

	// Commit.
	meta, _ := json.Marshal(map[string]string{"name": "Alice Example", "reason": "Approval"})
	body, contentType = multipartBody(t, "", "", nil, map[string]string{
		"pending_handle": prepared.PendingHandle,
		"signature":      signHash(t, f.key, prepared.ContentHash),
		"public_key":     f.pub,
		"metadata":       string(meta),
	})
	req = httptest.NewRequest("POST", "/api/signature/commit", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var committed struct {
		RecordID string `json:"record_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &committed))
	require.NotEmpty(t, committed.RecordID)

	// Verify without a token; the stored record supplies the key.
	body, contentType = multipartBody(t, "file", "doc.pdf", doc, nil)
	req = httptest.NewRequest("POST", "/api/signature/verify", body)
	req.Header.Set("Content-Type", contentType)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var verified struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.True(t, verified.Valid)
	assert.Equal(t, "ok", verified.Reason)

	// Record listing needs the admin role.
	req = httptest.NewRequest("GET", "/api/signature/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = f.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := f.token(t, "admin", "password123")
	req = httptest.NewRequest("GET", "/api/signature/records", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":1`)

	// Download the annotated artifact.
	req = httptest.NewRequest("GET", "/api/signature/records/"+committed.RecordID+"/download", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}

func TestVerifyUnsignedOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	body, contentType := multipartBody(t, "file", "doc.pdf", testPDF(t, "BT (unsigned) Tj ET"), nil)
	req := httptest.NewRequest("POST", "/api/signature/verify", body)
	req.Header.Set("Content-Type", contentType)
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var verified struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.False(t, verified.Valid)
	assert.Equal(t, "not_signed", verified.Reason)
}
