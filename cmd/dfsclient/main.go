// Command dfsclient is the interactive client: it holds one NS session
// open for the lifetime of the process and resolves each content command
// to a short-lived storage-server connection.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dfs/internal/cliui"
	"github.com/marmos91/dfs/internal/dfsclient"
	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/wire"
	"github.com/marmos91/dfs/pkg/config"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dfsclient [ns_ip] [ns_port]",
		Short: "Interactive client for the distributed filesystem",
		Long: `dfsclient connects to a name server and opens an interactive session for
directory operations (create, delete, view, move, access control) and file
content operations (read, write, checkpoint, undo, revert), redirecting to
storage servers as the name server instructs.

Positional args override ns_host/ns_port from the config file.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runClient,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/dfs/config.yaml)")
	return cmd
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) >= 1 {
		cfg.Client.NSHost = args[0]
	}
	if len(args) >= 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid ns_port %q: %w", args[1], err)
		}
		cfg.Client.NSPort = port
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	username := cfg.Client.Username
	if username == "" {
		username, err = cliui.InputRequired("Username")
		if err != nil {
			return err
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Client.NSHost, cfg.Client.NSPort)
	fmt.Printf("connecting to name server at %s as %s...\n", addr, username)
	session, err := dfsclient.Connect(addr, username)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	fmt.Println("connected. type 'help' for a list of commands, 'exit' to quit.")
	repl := newREPL(session)
	return repl.run()
}

// repl reads one command per line from stdin and dispatches it against the
// open session. Each command is independent; the session itself holds no
// per-command state beyond the NS connection and username.
type repl struct {
	session *dfsclient.Session
	in      *bufio.Scanner
}

func newREPL(session *dfsclient.Session) *repl {
	return &repl{session: session, in: bufio.NewScanner(os.Stdin)}
}

func (r *repl) run() error {
	for {
		fmt.Print("dfs> ")
		if !r.in.Scan() {
			fmt.Println()
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		rest := fields[1:]

		if cmd == "exit" || cmd == "quit" {
			return nil
		}

		if err := r.dispatch(cmd, rest); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func (r *repl) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		printHelp()
		return nil
	case "create":
		return r.needArgs(args, 1, func() error { return r.session.NS().Create(args[0]) })
	case "createfolder":
		return r.needArgs(args, 1, func() error { return r.session.NS().CreateFolder(args[0]) })
	case "delete":
		return r.needArgs(args, 1, func() error { return r.session.NS().Delete(args[0]) })
	case "undo":
		return r.needArgs(args, 1, func() error { return r.session.NS().Undo(args[0]) })
	case "addaccess":
		return r.needArgs(args, 3, func() error {
			perm, err := parsePermission(args[2])
			if err != nil {
				return err
			}
			return r.session.NS().AddAccess(args[0], args[1], perm)
		})
	case "remaccess":
		return r.needArgs(args, 2, func() error { return r.session.NS().RemAccess(args[0], args[1]) })
	case "movefile":
		return r.needArgs(args, 2, func() error { return r.session.NS().MoveFile(args[0], args[1]) })
	case "movefolder":
		return r.needArgs(args, 2, func() error { return r.session.NS().MoveFolder(args[0], args[1]) })
	case "info":
		return r.needArgs(args, 1, func() error {
			info, err := r.session.NS().Info(args[0])
			if err != nil {
				return err
			}
			cliui.PrintFileInfo(os.Stdout, info)
			return nil
		})
	case "list":
		return r.noArgs(args, func() error {
			names, err := r.session.NS().List()
			if err != nil {
				return err
			}
			cliui.PrintUsernames(os.Stdout, names)
			return nil
		})
	case "view":
		return r.view(args, false)
	case "viewall":
		return r.view(args, true)
	case "viewfolder":
		return r.viewFolder(args, false)
	case "viewfolderall":
		return r.viewFolder(args, true)
	case "read":
		return r.needArgs(args, 1, func() error {
			lines, err := r.session.ReadFile(args[0])
			if err != nil {
				return err
			}
			cliui.PrintLines(os.Stdout, lines)
			return nil
		})
	case "stream":
		return r.needArgs(args, 1, func() error {
			lines, err := r.session.StreamFile(args[0])
			if err != nil {
				return err
			}
			cliui.PrintLines(os.Stdout, lines)
			return nil
		})
	case "write":
		return r.write(args)
	case "checkpoint":
		return r.needArgs(args, 2, func() error { return r.session.Checkpoint(args[0], args[1]) })
	case "viewcheckpoint":
		return r.needArgs(args, 2, func() error {
			lines, err := r.session.ViewCheckpoint(args[0], args[1])
			if err != nil {
				return err
			}
			cliui.PrintLines(os.Stdout, lines)
			return nil
		})
	case "revert":
		return r.needArgs(args, 2, func() error { return r.session.Revert(args[0], args[1]) })
	case "listcheckpoints":
		return r.needArgs(args, 1, func() error {
			tags, err := r.session.ListCheckpoints(args[0])
			if err != nil {
				return err
			}
			cliui.PrintCheckpoints(os.Stdout, tags)
			return nil
		})
	case "requestaccess":
		return r.needArgs(args, 2, func() error {
			perm, err := parsePermission(args[1])
			if err != nil {
				return err
			}
			return r.session.RequestAccess(args[0], perm)
		})
	case "viewrequests":
		return r.needArgs(args, 1, func() error {
			reqs, err := r.session.ViewRequests(args[0])
			if err != nil {
				return err
			}
			cliui.PrintAccessRequests(os.Stdout, reqs)
			return nil
		})
	case "approverequest":
		return r.needArgs(args, 2, func() error { return r.session.ApproveRequest(args[0], args[1]) })
	case "denyrequest":
		return r.needArgs(args, 2, func() error { return r.session.DenyRequest(args[0], args[1]) })
	case "locate":
		return r.needArgs(args, 1, func() error {
			redir, err := r.session.NS().LocateFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s:%d\n", redir.IP, redir.Port)
			return nil
		})
	case "exec":
		return r.needArgs(args, 1, func() error {
			return r.session.NS().Exec(args[0], func(line string) error {
				fmt.Println(line)
				return nil
			})
		})
	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list", cmd)
	}
}

func (r *repl) view(args []string, showAll bool) error {
	return r.noArgs(args, func() error {
		resp, err := r.session.NS().View(showAll)
		if err != nil {
			return err
		}
		cliui.PrintListing(os.Stdout, resp.Rows)
		return nil
	})
}

func (r *repl) viewFolder(args []string, showAll bool) error {
	return r.needArgs(args, 1, func() error {
		resp, err := r.session.NS().ViewFolder(args[0], showAll)
		if err != nil {
			return err
		}
		cliui.PrintListing(os.Stdout, resp.Rows)
		return nil
	})
}

// write prompts for one sentence's worth of word edits interactively: each
// line is "<word_index> <content>", terminated by a bare "." line, mirroring
// the underlying ETIRW commit marker on the wire.
func (r *repl) write(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <filename> <sentence_num>")
	}
	filename := args[0]
	sentenceNum, err := strconv.Atoi(args[1])
	if err != nil || sentenceNum < 1 {
		return fmt.Errorf("sentence number must be a positive integer")
	}

	var edits []dfsclient.Edit
	fmt.Println("enter edits as '<word_index> <content>', a bare '.' to commit:")
	for {
		fmt.Print("  edit> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "." {
			break
		}
		idxStr, content, ok := strings.Cut(line, " ")
		if !ok {
			fmt.Println("  expected '<word_index> <content>'")
			continue
		}
		idx, err := dfsclient.ParseWordIndex(idxStr)
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		edits = append(edits, dfsclient.Edit{WordIndex: idx, Content: content})
	}
	return r.session.WriteSentence(filename, sentenceNum, edits)
}

func (r *repl) needArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		return fmt.Errorf("expected at least %d argument(s)", n)
	}
	return fn()
}

func (r *repl) noArgs(_ []string, fn func() error) error {
	return fn()
}

func parsePermission(s string) (wire.Permission, error) {
	switch strings.ToUpper(s) {
	case "READ":
		return wire.PermissionRead, nil
	case "WRITE":
		return wire.PermissionWrite, nil
	default:
		return 0, fmt.Errorf("permission must be READ or WRITE, got %q", s)
	}
}

func printHelp() {
	fmt.Println(`commands:
  create <file>                         create an empty file you own
  createfolder <folder>                 create an empty folder you own
  delete <file>                         delete a file you own
  undo <file>                           revert a file to its last backup
  addaccess <file> <user> <READ|WRITE>  grant a user access to a file
  remaccess <file> <user>               revoke a user's access
  movefile <file> <folder>              move a file into a folder
  movefolder <src> <dst>                move a folder tree
  info <file>                           show a file's metadata
  list                                  list active usernames
  view / viewall                        list your files/folders at the root
  viewfolder / viewfolderall <folder>   list a folder's contents
  read <file> / stream <file>           show a file's current content
  write <file> <sentence_num>           edit one sentence interactively
  checkpoint <file> <tag>               snapshot a file under a tag
  viewcheckpoint <file> <tag>           show a checkpoint's content
  revert <file> <tag>                   restore a file from a checkpoint
  listcheckpoints <file>                list a file's checkpoint tags
  requestaccess <file> <READ|WRITE>     ask the owner for access
  viewrequests <file>                   list pending access requests
  approverequest <file> <user>          grant a pending request
  denyrequest <file> <user>             reject a pending request
  locate <file>                         show which storage server holds a file
  exec <file>                           run a file as a command, stream output
  exit                                  close the session`)
}
