package grant

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/mixtape/mixtape/internal/localfs"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/validation"
)

// AzureGrant stores artifacts in a blob container reached through a
// container-scoped SAS URL. Locators look like azure://container/prefix/name.
type AzureGrant struct {
	client    *container.Client
	container string
	prefix    string
	label     string

	mu        sync.Mutex
	mimeTypes map[storage.Locator]string
}

// NewAzureGrant creates a container client from the SAS URL. The SAS token is
// the consent: no account key is ever stored.
func NewAzureGrant(cfg models.AzureGrant, label string, httpClient *nethttp.Client) (*AzureGrant, error) {
	name, err := containerName(cfg.ContainerSASURL)
	if err != nil {
		return nil, err
	}

	opts := &container.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}
	client, err := container.NewClientWithNoCredential(cfg.ContainerSASURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create container client: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if label == "" {
		label = "azure://" + path.Join(name, prefix)
	}
	return &AzureGrant{
		client:    client,
		container: name,
		prefix:    prefix,
		label:     label,
		mimeTypes: make(map[storage.Locator]string),
	}, nil
}

// containerName extracts the container from a container SAS URL.
func containerName(sasURL string) (string, error) {
	u, err := url.Parse(sasURL)
	if err != nil {
		return "", fmt.Errorf("invalid container SAS URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("invalid container SAS URL: scheme must be https")
	}
	if u.RawQuery == "" {
		return "", fmt.Errorf("invalid container SAS URL: missing SAS token")
	}
	name, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if name == "" {
		return "", fmt.Errorf("invalid container SAS URL: missing container name")
	}
	return name, nil
}

// Label returns the display label.
func (g *AzureGrant) Label() string { return g.label }

func (g *AzureGrant) root() string {
	return "azure://" + g.container + "/"
}

func (g *AzureGrant) blobName(name string) string {
	if g.prefix == "" {
		return name
	}
	return g.prefix + "/" + name
}

// Locate returns the locator for name.
func (g *AzureGrant) Locate(name string) storage.Locator {
	return storage.Locator(g.root() + g.blobName(name))
}

// NameOf returns the blob name without container and prefix.
func (g *AzureGrant) NameOf(loc storage.Locator) string {
	return path.Base(string(loc))
}

func (g *AzureGrant) blobOf(op string, loc storage.Locator) (string, error) {
	name, ok := strings.CutPrefix(string(loc), g.root())
	if !ok || (g.prefix != "" && !strings.HasPrefix(name, g.prefix+"/")) {
		return "", storage.NewError(op, loc, storage.ErrPermissionDenied, fmt.Errorf("locator outside granted prefix"))
	}
	return name, nil
}

// CreateArtifact reserves a locator for name; the blob is created on upload.
func (g *AzureGrant) CreateArtifact(_ context.Context, name, mimeType string) (storage.Locator, error) {
	if err := validation.ValidateFilename(name); err != nil {
		return "", storage.NewError("create", storage.Locator(name), storage.ErrInvalidName, err)
	}
	loc := g.Locate(name)
	g.mu.Lock()
	g.mimeTypes[loc] = mimeType
	g.mu.Unlock()
	return loc, nil
}

// WriteArtifact uploads r as a block blob.
func (g *AzureGrant) WriteArtifact(ctx context.Context, loc storage.Locator, r io.Reader, _ int64) error {
	name, err := g.blobOf("write", loc)
	if err != nil {
		return err
	}
	opts := &blockblob.UploadStreamOptions{}
	g.mu.Lock()
	if mt := g.mimeTypes[loc]; mt != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &mt}
	}
	g.mu.Unlock()
	if _, err := g.client.NewBlockBlobClient(name).UploadStream(ctx, r, opts); err != nil {
		return mapAzureError("write", loc, err, storage.ErrWriteFailed)
	}
	g.mu.Lock()
	delete(g.mimeTypes, loc)
	g.mu.Unlock()
	return nil
}

// Stat returns the blob at loc.
func (g *AzureGrant) Stat(ctx context.Context, loc storage.Locator) (storage.Artifact, error) {
	name, err := g.blobOf("stat", loc)
	if err != nil {
		return storage.Artifact{}, err
	}
	props, err := g.client.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return storage.Artifact{}, mapAzureError("stat", loc, err, storage.ErrNotFound)
	}
	a := storage.Artifact{Name: g.NameOf(loc), Locator: loc}
	if props.ContentLength != nil {
		a.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		a.ModTime = *props.LastModified
	}
	return a, nil
}

// Open streams the blob at loc.
func (g *AzureGrant) Open(ctx context.Context, loc storage.Locator) (io.ReadCloser, error) {
	name, err := g.blobOf("open", loc)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, mapAzureError("open", loc, err, storage.ErrNotFound)
	}
	return resp.Body, nil
}

// Remove deletes the blob at loc. Missing blobs are ignored.
func (g *AzureGrant) Remove(ctx context.Context, loc storage.Locator) error {
	name, err := g.blobOf("remove", loc)
	if err != nil {
		return err
	}
	if _, err := g.client.NewBlobClient(name).Delete(ctx, nil); err != nil {
		mapped := mapAzureError("remove", loc, err, storage.ErrWriteFailed)
		if storage.IsNotFound(mapped) {
			return nil
		}
		return mapped
	}
	return nil
}

// List returns the blobs directly under the prefix.
func (g *AzureGrant) List(ctx context.Context) ([]storage.Artifact, error) {
	listPrefix := ""
	if g.prefix != "" {
		listPrefix = g.prefix + "/"
	}
	pager := g.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &listPrefix})

	var out []storage.Artifact
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzureError("list", storage.Locator(g.root()+listPrefix), err, storage.ErrNotFound)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*item.Name, listPrefix)
			if name == "" || strings.Contains(name, "/") || localfs.IsHiddenName(name) {
				continue
			}
			a := storage.Artifact{Name: name, Locator: g.Locate(name)}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					a.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					a.ModTime = *item.Properties.LastModified
				}
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// mapAzureError translates blob service error codes into storage error kinds.
func mapAzureError(op string, loc storage.Locator, err error, fallback error) error {
	switch {
	case bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.AuthorizationResourceTypeMismatch,
		bloberror.InsufficientAccountPermissions):
		return storage.NewError(op, loc, storage.ErrPermissionDenied, err)
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return storage.NewError(op, loc, storage.ErrNotFound, err)
	}
	return storage.Classify(op, loc, err, fallback)
}
