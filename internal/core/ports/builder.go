package ports

import "context"

// BuilderService defines operations for building container images from source
// code.
type BuilderService interface {
	// BuildImage clones a repository and builds an image from its
	// Dockerfile. It returns the tag the image was built under.
	BuildImage(ctx context.Context, repoURL string, imageTag string) (string, error)
}
