package auth

import "encoding/json"

// ProviderAccount is the provider's view of the authenticated principal.
// Beyond SubjectID and PrincipalName the blob is opaque to this service;
// it is stored verbatim and handed back to the provider when needed.
type ProviderAccount struct {
	SubjectID     string `json:"subject_id"`     // stable AAD object id (oid / sub)
	PrincipalName string `json:"principal_name"` // UPN, may be empty
	TenantID      string `json:"tenant_id"`
	HomeAccountID string `json:"home_account_id"` // usually "<oid>.<tid>"
}

// Marshal serializes the account for storage.
func (a ProviderAccount) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAccount restores an account blob written by Marshal.
func UnmarshalAccount(data []byte) (ProviderAccount, error) {
	var a ProviderAccount
	err := json.Unmarshal(data, &a)
	return a, err
}
