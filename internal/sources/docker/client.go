package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// containerInfo holds the slice of container state the source needs.
type containerInfo struct {
	ID     string
	Name   string
	Image  string
	State  string // "running", "exited", "dead", ...
	Labels map[string]string
}

// engineClient abstracts the Docker Engine API interactions the source
// performs, so tests can substitute a fake.
type engineClient interface {
	// ContainerList returns all containers, including stopped ones.
	ContainerList(ctx context.Context) ([]containerInfo, error)

	// ContainerInspect returns the container's info plus its full inspect
	// document as raw JSON.
	ContainerInspect(ctx context.Context, id string) (containerInfo, json.RawMessage, error)
}

// sdkClient implements engineClient using the official Docker SDK.
type sdkClient struct {
	cli *dockerclient.Client
}

// newSDKClient creates a Docker client for the given host (unix socket or
// TCP endpoint).
func newSDKClient(host string) (*sdkClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(host),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &sdkClient{cli: cli}, nil
}

func (c *sdkClient) ContainerList(ctx context.Context) ([]containerInfo, error) {
	raw, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	containers := make([]containerInfo, len(raw))
	for i, r := range raw {
		name := ""
		if len(r.Names) > 0 {
			name = strings.TrimPrefix(r.Names[0], "/")
		}
		containers[i] = containerInfo{
			ID:     r.ID,
			Name:   name,
			Image:  r.Image,
			State:  r.State,
			Labels: r.Labels,
		}
	}
	return containers, nil
}

func (c *sdkClient) ContainerInspect(ctx context.Context, id string) (containerInfo, json.RawMessage, error) {
	raw, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return containerInfo{}, nil, fmt.Errorf("container inspect: %w", err)
	}

	info := containerInfo{
		ID:   raw.ID,
		Name: strings.TrimPrefix(raw.Name, "/"),
	}
	if raw.Config != nil {
		info.Image = raw.Config.Image
		info.Labels = raw.Config.Labels
	}
	if raw.State != nil {
		info.State = raw.State.Status
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return containerInfo{}, nil, fmt.Errorf("encode inspect document: %w", err)
	}
	return info, payload, nil
}
