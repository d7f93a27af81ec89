package contacts_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/contacts/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testImageName = "contacts-test:latest"
	testSecret    = "e2e-secret-0123456789abcdef012345"
	testPassword  = "hunter22"
)

// TestMain builds the service image once for the whole suite. The suite only
// runs with CONTACTS_E2E=1 since it needs a Docker daemon.
func TestMain(m *testing.M) {
	if os.Getenv("CONTACTS_E2E") != "1" {
		fmt.Fprintln(os.Stdout, "CONTACTS_E2E not set, skipping end-to-end tests")
		os.Exit(0)
	}

	fmt.Fprintf(os.Stdout, "Building contacts Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up contacts Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/contacts/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

type service struct {
	container testcontainers.Container
	client    *authsdk.SDKClient
}

// startService runs the service with emails written to its log, which is
// where the tests read confirmation and reset links from.
func startService(t *testing.T, env map[string]string) *service {
	t.Helper()
	ctx := context.Background()

	base := map[string]string{
		"CONTACTS_SECRET_KEY": testSecret,
		"CONTACTS_ISSUER":     "contacts-e2e",
		"MAIL_TRANSPORT":      "log",
		"ENV":                 "test",
		"CONTACTS_BASE_URL":   "http://localhost:8080",
		"LOG_LEVEL":           "info",
		"LOG_FORMAT":          "json",
		// E2E tests make many rapid requests from one address.
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
	for k, v := range env {
		base[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          base,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return &service{
		container: container,
		client:    authsdk.NewSDKClient(fmt.Sprintf("http://%s:%s", host, port.Port())),
	}
}

// emailToken waits for the most recent email of kind and returns the token
// from its link.
func (s *service) emailToken(t *testing.T, kind string) string {
	t.Helper()

	var token string
	require.Eventually(t, func() bool {
		token = s.lastEmailToken(t, kind)
		return token != ""
	}, 10*time.Second, 200*time.Millisecond, "no %s email logged", kind)
	return token
}

func (s *service) lastEmailToken(t *testing.T, kind string) string {
	t.Helper()

	logs, err := s.container.Logs(context.Background())
	require.NoError(t, err)
	defer logs.Close()

	var token string
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		// Docker may prefix each line with a stream header.
		line := sc.Text()
		if i := strings.IndexByte(line, '{'); i > 0 {
			line = line[i:]
		}

		var entry struct {
			Msg  string `json:"msg"`
			Kind string `json:"kind"`
			Link string `json:"link"`
		}
		if json.Unmarshal([]byte(line), &entry) != nil || entry.Kind != kind || entry.Link == "" {
			continue
		}
		switch {
		case strings.Contains(entry.Link, "/confirmed_email/"):
			token = entry.Link[strings.LastIndex(entry.Link, "/")+1:]
		case strings.Contains(entry.Link, "token="):
			token = entry.Link[strings.Index(entry.Link, "token=")+len("token="):]
		}
	}
	return token
}

// signupAndConfirm creates a confirmed account.
func (s *service) signupAndConfirm(t *testing.T, email string) {
	t.Helper()

	_, err := s.client.Signup(t.Context(), authsdk.SignupRequest{Username: "e2e", Email: email, Password: testPassword})
	require.NoError(t, err)

	_, err = s.client.ConfirmEmail(t.Context(), s.emailToken(t, "confirm_email"))
	require.NoError(t, err)
}
