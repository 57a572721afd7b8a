// Command darkmatter-vault is a demo harness wiring the fragment and
// shamir engines to a badger-backed store and a symmetric cipher. It
// carries no field arithmetic of its own: protect, recover, corrupt and
// inspect only orchestrate the engine and collaborator packages.
package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/aquarelle-tech/darkmatter-vault/cipher"
	"github.com/aquarelle-tech/darkmatter-vault/fragment"
	"github.com/aquarelle-tech/darkmatter-vault/shamir"
	"github.com/aquarelle-tech/darkmatter-vault/store"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "darkmatter-vault"
	myApp.Usage = "erasure-coded, threshold-shared record vault"
	myApp.Version = VERSION

	dbFlag := cli.StringFlag{
		Name:  "db",
		Value: "darkmatter.db",
		Usage: "path to the badger database directory",
	}

	myApp.Commands = []cli.Command{
		{
			Name:  "protect",
			Usage: "encrypt a file, fragment the ciphertext, and split the key",
			Flags: []cli.Flag{
				dbFlag,
				cli.StringFlag{Name: "in", Usage: "path to the plaintext file to protect"},
				cli.StringFlag{Name: "record", Usage: "record id to store the result under"},
				cli.IntFlag{Name: "k", Value: 4, Usage: "number of data fragments"},
				cli.IntFlag{Name: "m", Value: 2, Usage: "number of parity fragments"},
				cli.IntFlag{Name: "threshold", Value: 3, Usage: "shares required to reconstruct the key"},
				cli.IntFlag{Name: "shares", Value: 5, Usage: "total key shares to produce"},
			},
			Action: actionProtect,
		},
		{
			Name:  "recover",
			Usage: "reconstruct a previously protected record",
			Flags: []cli.Flag{
				dbFlag,
				cli.StringFlag{Name: "record", Usage: "record id to recover"},
				cli.StringFlag{Name: "out", Usage: "path to write the recovered plaintext to"},
			},
			Action: actionRecover,
		},
		{
			Name:  "corrupt",
			Usage: "erase random fragment slots, simulating lost storage substrate",
			Flags: []cli.Flag{
				dbFlag,
				cli.StringFlag{Name: "record", Usage: "record id to corrupt"},
				cli.IntFlag{Name: "erase", Value: 1, Usage: "number of fragment slots to erase"},
			},
			Action: actionCorrupt,
		},
		{
			Name:  "inspect",
			Usage: "print fragment/share availability and the audit log for a record",
			Flags: []cli.Flag{
				dbFlag,
				cli.StringFlag{Name: "record", Usage: "record id to inspect"},
			},
			Action: actionInspect,
		},
	}

	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func actionProtect(c *cli.Context) error {
	recordID := c.String("record")
	if recordID == "" {
		return errors.New("protect: --record is required")
	}

	plaintext, err := ioutil.ReadFile(c.String("in"))
	if err != nil {
		return errors.Wrap(err, "read input file")
	}

	key, err := cipher.GenerateKey()
	if err != nil {
		return err
	}
	ciphertext, nonce, err := cipher.Seal(key, plaintext)
	if err != nil {
		return err
	}

	k, m := c.Int("k"), c.Int("m")
	codec, err := fragment.NewCodec(k, m)
	if err != nil {
		return errors.Wrap(err, "construct codec")
	}
	frags, err := codec.Encode(ciphertext)
	if err != nil {
		return errors.Wrap(err, "encode ciphertext")
	}

	threshold, shares := c.Int("threshold"), c.Int("shares")
	splitter, err := shamir.NewSplitter(threshold, shares)
	if err != nil {
		return errors.Wrap(err, "construct splitter")
	}
	keyShares, err := splitter.Split(key)
	if err != nil {
		return errors.Wrap(err, "split key")
	}

	db, err := store.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	for i, f := range frags {
		if err := db.StoreFragment(recordID, i, f); err != nil {
			return err
		}
	}
	for _, share := range keyShares {
		if err := db.StoreShare(recordID, share); err != nil {
			return err
		}
	}
	if err := db.StoreNonce(recordID, nonce); err != nil {
		return err
	}
	if err := db.StoreSecretLength(recordID, len(key)); err != nil {
		return err
	}
	if err := db.StorePlaintextLength(recordID, len(plaintext)); err != nil {
		return err
	}
	if err := db.StoreParams(recordID, store.Params{K: k, M: m, Threshold: threshold, Shares: shares}); err != nil {
		return err
	}
	if err := db.AppendAuditEvent(store.AuditEvent{
		RecordID:    recordID,
		Operation:   "protect",
		TimestampNS: time.Now().UnixNano(),
		Detail:      fmt.Sprintf("k=%d m=%d threshold=%d shares=%d", k, m, threshold, shares),
	}); err != nil {
		return err
	}

	log.Printf("protected record %s: %d bytes plaintext, %d+%d fragments, %d-of-%d shares",
		recordID, len(plaintext), k, m, threshold, shares)
	return nil
}

func actionRecover(c *cli.Context) error {
	recordID := c.String("record")
	if recordID == "" {
		return errors.New("recover: --record is required")
	}

	db, err := store.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	params, err := db.GetParams(recordID)
	if err != nil {
		return errors.Wrap(err, "load record parameters")
	}

	codec, err := fragment.NewCodec(params.K, params.M)
	if err != nil {
		return errors.Wrap(err, "construct codec")
	}
	frags, err := db.AvailableFragments(recordID, params.K+params.M)
	if err != nil {
		return err
	}
	ciphertext, err := codec.Decode(frags)
	if err != nil {
		return errors.Wrap(err, "decode fragments")
	}

	shares, err := db.AvailableShares(recordID, params.Shares)
	if err != nil {
		return err
	}
	splitter, err := shamir.NewSplitter(params.Threshold, params.Shares)
	if err != nil {
		return errors.Wrap(err, "construct splitter")
	}
	secretLen, err := db.SecretLength(recordID)
	if err != nil {
		return errors.Wrap(err, "load key length")
	}
	key, err := splitter.Reconstruct(shares, secretLen)
	if err != nil {
		return errors.Wrap(err, "reconstruct key")
	}

	nonce, err := db.Nonce(recordID)
	if err != nil {
		return errors.Wrap(err, "load nonce")
	}
	plaintext, err := cipher.Open(key, nonce, ciphertext)
	if err != nil {
		return errors.Wrap(err, "decrypt ciphertext")
	}

	if err := ioutil.WriteFile(c.String("out"), plaintext, 0o600); err != nil {
		return errors.Wrap(err, "write recovered plaintext")
	}

	if err := db.AppendAuditEvent(store.AuditEvent{
		RecordID:    recordID,
		Operation:   "recover",
		TimestampNS: time.Now().UnixNano(),
		Detail:      fmt.Sprintf("%d fragments, %d shares used", len(frags), len(shares)),
	}); err != nil {
		return err
	}

	log.Printf("recovered record %s: %d bytes plaintext written to %s", recordID, len(plaintext), c.String("out"))
	return nil
}

func actionCorrupt(c *cli.Context) error {
	recordID := c.String("record")
	if recordID == "" {
		return errors.New("corrupt: --record is required")
	}

	db, err := store.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	params, err := db.GetParams(recordID)
	if err != nil {
		return errors.Wrap(err, "load record parameters")
	}
	total := params.K + params.M

	erase := c.Int("erase")
	if erase > total {
		erase = total
	}
	indices := rand.Perm(total)[:erase]
	for _, idx := range indices {
		if err := db.DeleteFragment(recordID, idx); err != nil {
			return err
		}
	}

	if err := db.AppendAuditEvent(store.AuditEvent{
		RecordID:    recordID,
		Operation:   "corrupt",
		TimestampNS: time.Now().UnixNano(),
		Detail:      fmt.Sprintf("erased slots %v", indices),
	}); err != nil {
		return err
	}

	log.Printf("corrupted record %s: erased %d of %d fragment slots %v", recordID, erase, total, indices)
	return nil
}

func actionInspect(c *cli.Context) error {
	recordID := c.String("record")
	if recordID == "" {
		return errors.New("inspect: --record is required")
	}

	db, err := store.Open(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	params, err := db.GetParams(recordID)
	if err != nil {
		return errors.Wrap(err, "load record parameters")
	}

	frags, err := db.AvailableFragments(recordID, params.K+params.M)
	if err != nil {
		return err
	}
	present := 0
	for _, f := range frags {
		if f != nil {
			present++
		}
	}

	shares, err := db.AvailableShares(recordID, params.Shares)
	if err != nil {
		return err
	}

	fmt.Printf("record %s: %d/%d fragments present (need %d), %d/%d shares present (need %d)\n",
		recordID, present, params.K+params.M, params.K, len(shares), params.Shares, params.Threshold)

	events, err := db.AuditLog(recordID)
	if err != nil {
		return err
	}
	fmt.Println("audit log:")
	for _, event := range events {
		fmt.Printf("  %s %s %s\n", time.Unix(0, event.TimestampNS).Format(time.RFC3339Nano), event.Operation, event.Detail)
	}
	return nil
}
