// internal/ssh/auth.go

package ssh

import (
	"fmt"
	"net"
	"os"
	"strings"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// authMethods zamienia opis uwierzytelnienia na metody x/crypto/ssh.
// Sekrety są materializowane dopiero tutaj, w chwili łączenia.
func (c *Client) authMethods(host *models.Host) ([]ssh.AuthMethod, error) {
	auth := host.Authentication

	switch auth.Type {
	case models.AuthNone, "":
		return nil, nil

	case models.AuthPassword:
		// Część serwerów przyjmuje hasło tylko przez keyboard-interactive
		return []ssh.AuthMethod{
			ssh.Password(auth.Password),
			ssh.KeyboardInteractive(answerWith(auth.Password)),
		}, nil

	case models.AuthPublicKey:
		if c.opts.Keys == nil {
			return nil, apperr.New(apperr.ConfigError, "no key resolver configured", nil)
		}
		signer, err := c.opts.Keys.Signer(auth.Password)
		if err != nil {
			return nil, apperr.New(apperr.AuthenticationError, "failed to load private key", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case models.AuthSSHAgent:
		ag, err := c.agent()
		if err != nil {
			return nil, apperr.New(apperr.AuthenticationError, "ssh agent unavailable", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil

	case models.AuthKeyboardInteractive:
		challenge := c.opts.Challenge
		if challenge == nil {
			challenge = answerWith(auth.Password)
		}
		return []ssh.AuthMethod{ssh.KeyboardInteractive(challenge)}, nil
	}

	return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("unsupported authentication type %q", auth.Type), nil)
}

func answerWith(secret string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = secret
		}
		return answers, nil
	}
}

func (c *Client) agent() (agent.ExtendedAgent, error) {
	sock := c.opts.AgentSocket
	if sock == "" {
		sock = os.Getenv("SSH_AUTH_SOCK")
	}
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent: %v", err)
	}

	c.mu.Lock()
	c.agentConns = append(c.agentConns, conn)
	c.mu.Unlock()

	return agent.NewClient(conn), nil
}

func isAuthError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}
