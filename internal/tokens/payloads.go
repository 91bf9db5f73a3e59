package tokens

const (
	TypeUpload  = "upload"
	TypeReceipt = "upload_receipt"
)

// UploadClaims authorize one browser upload window against a staging record.
// The policy limits travel with the token so the relay can enforce them
// without calling back.
type UploadClaims struct {
	Issuer           string   `json:"issuer"`
	Type             string   `json:"type"`
	SessionID        string   `json:"session_id"`
	StagingID        string   `json:"staging_id"`
	JTI              string   `json:"jti"`
	IssuedAt         int64    `json:"issued_at"`
	ExpiresAt        int64    `json:"expires_at"`
	StagingExpiresAt int64    `json:"staging_expires_at"`
	MaxFiles         int      `json:"max_files"`
	MaxSizeBytes     int64    `json:"max_size_bytes"`
	AllowedMIME      []string `json:"allowed_mime"`
}

// ReceiptClaims are signed by the relay for every stored file.
type ReceiptClaims struct {
	Issuer      string `json:"issuer"`
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	StagingID   string `json:"staging_id"`
	JTI         string `json:"jti"`
	DriveFileID string `json:"drive_file_id"`
	Name        string `json:"name"`
	Mime        string `json:"mime"`
	Size        int64  `json:"size"`
	IssuedAt    int64  `json:"issued_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (c *Codec) SignUpload(claims UploadClaims) (string, error) {
	claims.Type = TypeUpload
	return c.Sign(claims)
}

func (c *Codec) VerifyUpload(token string) (UploadClaims, error) {
	var claims UploadClaims
	if err := c.Verify(token, &claims); err != nil {
		return UploadClaims{}, err
	}
	if claims.Type != TypeUpload {
		return UploadClaims{}, ErrInvalidPayload
	}
	return claims, nil
}

func (c *Codec) VerifyReceipt(token string) (ReceiptClaims, error) {
	var claims ReceiptClaims
	if err := c.Verify(token, &claims); err != nil {
		return ReceiptClaims{}, err
	}
	if claims.Type != TypeReceipt {
		return ReceiptClaims{}, ErrInvalidPayload
	}
	return claims, nil
}
