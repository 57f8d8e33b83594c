package models

import "time"

// GrantProvider names the kind of external location a grant unlocks.
type GrantProvider string

const (
	GrantDirectory GrantProvider = "directory"
	GrantS3        GrantProvider = "s3"
	GrantAzure     GrantProvider = "azure"
)

// DirectoryGrant is a user-picked directory outside the sandbox.
type DirectoryGrant struct {
	Path string `json:"path"`
}

// S3Grant points at a bucket prefix. Static keys are optional; when empty the
// default AWS credential chain is used.
type S3Grant struct {
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix,omitempty"`
	Region       string `json:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	AccessKeyID  string `json:"accessKey,omitempty"`
	SecretKey    string `json:"secretKey,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// AzureGrant points at a blob container through a container SAS URL.
type AzureGrant struct {
	ContainerSASURL string `json:"containerSasUrl"`
	Prefix          string `json:"prefix,omitempty"`
}

// GrantRecord is what a one-time consent step produces. The token is the only
// thing the rest of the system holds on to.
type GrantRecord struct {
	Token     string          `json:"token"`
	Provider  GrantProvider   `json:"provider"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"createdAt"`
	Directory *DirectoryGrant `json:"directory,omitempty"`
	S3        *S3Grant        `json:"s3,omitempty"`
	Azure     *AzureGrant     `json:"azure,omitempty"`
}
