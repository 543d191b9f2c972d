package jobmesh

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	libp2p_pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobmesh-project/jobmesh/pkg/dagstore"
	"github.com/jobmesh-project/jobmesh/pkg/executor"
	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	boltjobstore "github.com/jobmesh-project/jobmesh/pkg/jobstore/boltdb"
	"github.com/jobmesh-project/jobmesh/pkg/jobstore/inmemory"
	jobmesh_libp2p "github.com/jobmesh-project/jobmesh/pkg/libp2p"
	"github.com/jobmesh-project/jobmesh/pkg/mana"
	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/orchestrator"
	"github.com/jobmesh-project/jobmesh/pkg/publicapi"
	"github.com/jobmesh-project/jobmesh/pkg/pubsub"
	pubsub_libp2p "github.com/jobmesh-project/jobmesh/pkg/pubsub/libp2p"
	"github.com/jobmesh-project/jobmesh/pkg/receipt"
	"github.com/jobmesh-project/jobmesh/pkg/reputation"
	"github.com/jobmesh-project/jobmesh/pkg/selector"
	"github.com/jobmesh-project/jobmesh/pkg/system"
)

const (
	announcementsTopic = "jobmesh/v1/announcements"
	interestTopic      = "jobmesh/v1/bids"
	assignmentsTopic   = "jobmesh/v1/assignments"
	statusTopic        = "jobmesh/v1/status"
	receiptsTopic      = "jobmesh/v1/receipts"
	availableTopic     = "jobmesh/v1/receipts-available"

	DefaultSwarmPort = 4222
	DefaultAPIPort   = 1234
)

func init() { //nolint:gochecknoinits
	flags := serveCmd.PersistentFlags()
	flags.String("host", "0.0.0.0", "The host to listen on for API connections.")
	flags.Int("api-port", DefaultAPIPort, "The port to serve the REST API on.")
	flags.Int("swarm-port", DefaultSwarmPort, "The port to listen on for libp2p connections.")
	flags.StringSlice("peer", nil, "libp2p multiaddresses of peers to connect to.")
	flags.String("repo", filepath.Join(".", ".jobmesh"), "Directory for node keys and state.")
	flags.String("store-path", "", "Path to the bbolt job store. Empty keeps jobs in memory.")
	flags.String("ipfs-connect", "", "Address of an IPFS HTTP API used to anchor receipts. Empty keeps blocks in memory.")
	flags.String("reputation-url", "", "Base URL of a reputation directory service. Empty keeps profiles in memory.")
	flags.Duration("reputation-cache-ttl", 5*time.Minute, "How long fetched reputation profiles stay fresh.")
	flags.Duration("bidding-window", orchestrator.DefaultBiddingWindow, "How long jobs accept bids after bidding opens.")
	flags.Float64("weight-price", selector.DefaultWeights.Price, "Bid scoring weight for price.")
	flags.Float64("weight-resources", selector.DefaultWeights.Resources, "Bid scoring weight for resource fit.")
	flags.Float64("weight-reputation", selector.DefaultWeights.Reputation, "Bid scoring weight for reputation.")
	flags.Float64("weight-timeliness", selector.DefaultWeights.Timeliness, "Bid scoring weight for timeliness.")
	flags.Uint64("price-cap", selector.DefaultPriceCap, "Price above which bids score zero on the price axis.")
	flags.Uint64("mana-initial", mana.DefaultPoolConfig.Initial, "Initial balance of newly created mana pools.")
	flags.Uint64("mana-max", mana.DefaultPoolConfig.Max, "Maximum balance a mana pool regenerates up to.")
	flags.Float64("mana-regen", mana.DefaultPoolConfig.RegenPerSec, "Mana regenerated per second.")
	flags.String("capacity-cpu", "", "CPU this node offers when bidding (e.g. 500m, 2). Empty disables bidding.")
	flags.String("capacity-memory", "", "Memory this node offers when bidding (e.g. 512Mb, 4Gb).")
	flags.String("capacity-disk", "", "Disk this node offers when bidding (e.g. 10Gb).")
	flags.Uint64("bid-price", 50, "Price this node asks per job when bidding.")
	flags.Uint64("mana-per-second", 0, "Mana cost charged per second of execution on this node.")
	flags.Duration("execution-timeout", 10*time.Minute, "Hard cap on a single execution.")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("JOBMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a jobmesh node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// Cleanup manager ensures that resources are freed before exiting:
		cm := system.NewCleanupManager()
		defer cm.Cleanup()

		swarmPort := viper.GetInt("swarm-port")
		repoDir := viper.GetString("repo")

		prvKey, err := jobmesh_libp2p.GetOrCreatePrivateKey(
			filepath.Join(repoDir, fmt.Sprintf("private_key.%d", swarmPort)))
		if err != nil {
			return err
		}
		host, err := jobmesh_libp2p.NewHost(swarmPort, prvKey)
		if err != nil {
			return err
		}
		cm.RegisterCallback(host.Close)
		nodeID := host.ID().String()

		if peers := viper.GetStringSlice("peer"); len(peers) > 0 {
			addrs := make([]multiaddr.Multiaddr, 0, len(peers))
			for _, p := range peers {
				addr, addrErr := multiaddr.NewMultiaddr(p)
				if addrErr != nil {
					return addrErr
				}
				addrs = append(addrs, addr)
			}
			if err := jobmesh_libp2p.ConnectToPeers(ctx, host, addrs); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("could not connect to all peers, continuing")
			}
		}

		gossipSub, err := libp2p_pubsub.NewGossipSub(ctx, host)
		if err != nil {
			return err
		}

		announceFeed, err := pubsub_libp2p.NewPubSub[models.JobAnnouncementV1](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: announcementsTopic, PubSub: gossipSub})
		if err != nil {
			return err
		}
		interestFeed, err := pubsub_libp2p.NewPubSub[models.JobInterestV1](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: interestTopic, PubSub: gossipSub})
		if err != nil {
			return err
		}
		assignFeed, err := pubsub_libp2p.NewPubSub[models.AssignJobV1](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: assignmentsTopic, PubSub: gossipSub})
		if err != nil {
			return err
		}
		statusFeed, err := pubsub_libp2p.NewPubSub[models.JobStatusUpdateV1](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: statusTopic, PubSub: gossipSub})
		if err != nil {
			return err
		}
		receiptFeed, err := pubsub_libp2p.NewPubSub[models.ExecutionReceipt](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: receiptsTopic, PubSub: gossipSub})
		if err != nil {
			return err
		}
		availableFeed, err := pubsub_libp2p.NewPubSub[models.ExecutionReceiptAvailableV1](ctx, pubsub_libp2p.PubSubParams{
			Host: host, TopicName: availableTopic, PubSub: gossipSub, IgnoreLocal: true})
		if err != nil {
			return err
		}
		// receipt availability is gossip other nodes consume; we only publish
		if err := availableFeed.Subscribe(ctx, pubsub.NewNoopSubscriber[models.ExecutionReceiptAvailableV1]()); err != nil {
			return err
		}

		var store jobstore.Store
		if storePath := viper.GetString("store-path"); storePath != "" {
			store, err = boltjobstore.NewBoltJobStore(storePath)
			if err != nil {
				return err
			}
		} else {
			store = inmemory.NewInMemoryJobStore()
		}
		cm.RegisterCallback(func() error {
			return store.Close(ctx)
		})

		var blocks dagstore.Store
		if ipfsAPI := viper.GetString("ipfs-connect"); ipfsAPI != "" {
			blocks, err = dagstore.NewIPFSStore(dagstore.IPFSStoreParams{APIAddr: ipfsAPI})
			if err != nil {
				return err
			}
		} else {
			blocks = dagstore.NewInMemoryStore()
		}

		var directory reputation.Directory
		if reputationURL := viper.GetString("reputation-url"); reputationURL != "" {
			remote := reputation.NewHTTPDirectory(reputation.HTTPDirectoryParams{BaseURL: reputationURL})
			directory = reputation.NewCachingDirectory(ctx, reputation.CachingDirectoryParams{
				Inner:            remote,
				TTL:              viper.GetDuration("reputation-cache-ttl"),
				EvictionInterval: viper.GetDuration("reputation-cache-ttl"),
			})
		} else {
			directory = reputation.NewInMemoryDirectory()
		}

		manaManager := mana.NewManager(mana.ManagerParams{
			Defaults: mana.PoolConfig{
				Initial:     viper.GetUint64("mana-initial"),
				Max:         viper.GetUint64("mana-max"),
				RegenPerSec: viper.GetFloat64("mana-regen"),
			},
		})

		registry := prometheus.NewRegistry()
		marketplace := orchestrator.NewMarketplace(orchestrator.MarketplaceParams{
			NodeID: nodeID,
			Store:  store,
			Selector: selector.NewSelector(selector.SelectorParams{
				Weights: selector.Weights{
					Price:      viper.GetFloat64("weight-price"),
					Resources:  viper.GetFloat64("weight-resources"),
					Reputation: viper.GetFloat64("weight-reputation"),
					Timeliness: viper.GetFloat64("weight-timeliness"),
				},
				PriceCap:  viper.GetUint64("price-cap"),
				Directory: directory,
				Metrics:   selector.NewMetrics(registry),
			}),
			Receipts:   receipt.NewService(receipt.ServiceParams{Store: blocks}),
			Mana:       manaManager,
			Reputation: directory,

			AnnouncementPublisher: announceFeed,
			AssignmentPublisher:   assignFeed,
			ReceiptPublisher:      availableFeed,
			BiddingWindow:         viper.GetDuration("bidding-window"),
			Metrics:               orchestrator.NewMetrics(registry),
		})

		if err := interestFeed.Subscribe(ctx, pubsub.SubscriberFunc[models.JobInterestV1](
			func(ctx context.Context, interest models.JobInterestV1) error {
				_, err := marketplace.SubmitBid(ctx, interest.Bid)
				return err
			})); err != nil {
			return err
		}
		if err := statusFeed.Subscribe(ctx, pubsub.SubscriberFunc[models.JobStatusUpdateV1](
			marketplace.UpdateJobStatus)); err != nil {
			return err
		}
		if err := receiptFeed.Subscribe(ctx, pubsub.SubscriberFunc[models.ExecutionReceipt](
			func(ctx context.Context, r models.ExecutionReceipt) error {
				_, err := marketplace.HandleReceipt(ctx, r)
				return err
			})); err != nil {
			return err
		}

		capacity, err := models.ResourcesConfig{
			CPU:    viper.GetString("capacity-cpu"),
			Memory: viper.GetString("capacity-memory"),
			Disk:   viper.GetString("capacity-disk"),
		}.Parse()
		if err != nil {
			return err
		}

		if !capacity.IsZero() {
			agent, agentErr := orchestrator.NewExecutorAgent(orchestrator.ExecutorAgentParams{
				PrivateKey: prvKey,
				Capacity:   capacity,
				Price:      viper.GetUint64("bid-price"),
				Engine: executor.NewWasmEngine(executor.WasmEngineParams{
					ManaPerSecond: viper.GetUint64("mana-per-second"),
				}),
				Blocks:           blocks,
				BidPublisher:     interestFeed,
				StatusPublisher:  statusFeed,
				ReceiptPublisher: receiptFeed,
				ExecutionTimeout: viper.GetDuration("execution-timeout"),
			})
			if agentErr != nil {
				return agentErr
			}
			if err := announceFeed.Subscribe(ctx, pubsub.SubscriberFunc[models.JobAnnouncementV1](
				agent.HandleAnnouncement)); err != nil {
				return err
			}
			if err := assignFeed.Subscribe(ctx, pubsub.SubscriberFunc[models.AssignJobV1](
				agent.HandleAssignment)); err != nil {
				return err
			}
			log.Ctx(ctx).Info().Str("Capacity", capacity.String()).
				Msg("executor agent enabled, bidding on announced jobs")
		} else {
			// keep gossip healthy even when we only coordinate
			if err := announceFeed.Subscribe(ctx, pubsub.NewNoopSubscriber[models.JobAnnouncementV1]()); err != nil {
				return err
			}
			if err := assignFeed.Subscribe(ctx, pubsub.NewNoopSubscriber[models.AssignJobV1]()); err != nil {
				return err
			}
		}

		apiServer := publicapi.NewServer(publicapi.APIServerParams{
			NodeID:          nodeID,
			Host:            viper.GetString("host"),
			Port:            viper.GetInt("api-port"),
			Marketplace:     marketplace,
			Store:           store,
			MetricsGatherer: registry,
		})
		return apiServer.ListenAndServe(ctx, cm)
	},
}
