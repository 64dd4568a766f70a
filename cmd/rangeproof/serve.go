package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xdao.co/rangeproof/prover"
	"xdao.co/rangeproof/server"
	"xdao.co/rangeproof/storage"
)

func cmdServe(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var sig signerFlags
	sig.add(fs)
	var listen string
	var maxRange uint64
	fs.StringVar(&listen, "listen", "127.0.0.1:8080", "HTTP listen address")
	fs.Uint64Var(&maxRange, "max-range", 16<<20, "Largest end-start served per request")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		log, err := sf.logger(errOut)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --log-level: %v\n", err)
			return 2
		}
		opts := []server.Option{
			server.WithLogger(log),
			server.WithMaxRange(maxRange),
		}
		if sig.configured() {
			a, err := sig.attester()
			if err != nil {
				fmt.Fprintf(errOut, "signer: %v\n", err)
				return 2
			}
			a.Logger = log
			opts = append(opts, server.WithAttester(a))
		}
		p := prover.New(store, prover.Options{Logger: log})
		srv := &http.Server{
			Handler:           server.New(p, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		lis, err := net.Listen("tcp", listen)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		log.WithField("addr", lis.Addr().String()).WithField("backend", sf.backend).Info("rangeproof serving")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(errOut, err)
			return 1
		}
		return 0
	})
}
