package walletrpc

import "context"

// BalanceResult is the result shape of get_balance.
type BalanceResult struct {
	Total    int64 `json:"balance"`
	Unlocked int64 `json:"unlocked_balance"`
}

// TransferInfo is the result shape of get_transfer_by_txid.
type TransferInfo struct {
	Confirmations int64 `json:"confirmations"`
	Height        int64 `json:"height"`
	Amount        int64 `json:"amount"`
	Fee           int64 `json:"fee"`
	Timestamp     int64 `json:"timestamp"`
}

// PrepareMultisig issues prepare_multisig and returns the wallet's
// key-exchange blob for round 1.
func (c *Client) PrepareMultisig(ctx context.Context) (string, error) {
	var result struct {
		MultisigInfo string `json:"multisig_info"`
	}
	if err := c.Call(ctx, "prepare_multisig", nil, &result); err != nil {
		return "", err
	}
	return result.MultisigInfo, nil
}

// MakeMultisig issues make_multisig with the given threshold and the
// other participants' blobs, returning the (possibly non-final) address
// and the blob to hand to the next round.
func (c *Client) MakeMultisig(ctx context.Context, threshold int, peerBlobs []string) (address, nextBlob string, err error) {
	params := map[string]interface{}{
		"multisig_info": peerBlobs,
		"threshold":     threshold,
	}
	var result struct {
		Address      string `json:"address"`
		MultisigInfo string `json:"multisig_info"`
	}
	if err := c.Call(ctx, "make_multisig", params, &result); err != nil {
		return "", "", err
	}
	return result.Address, result.MultisigInfo, nil
}

// ExportMultisigInfo issues export_multisig_info.
func (c *Client) ExportMultisigInfo(ctx context.Context) (string, error) {
	var result struct {
		Info string `json:"info"`
	}
	if err := c.Call(ctx, "export_multisig_info", nil, &result); err != nil {
		return "", err
	}
	return result.Info, nil
}

// ImportMultisigInfo issues import_multisig_info with the peers' exported
// blobs, returning the number of outputs imported.
func (c *Client) ImportMultisigInfo(ctx context.Context, peerInfo []string) (int, error) {
	params := map[string]interface{}{"info": peerInfo}
	var result struct {
		NOutputs int `json:"n_outputs"`
	}
	if err := c.Call(ctx, "import_multisig_info", params, &result); err != nil {
		return 0, err
	}
	return result.NOutputs, nil
}

// IsMultisig issues is_multisig.
func (c *Client) IsMultisig(ctx context.Context) (bool, error) {
	var result struct {
		Multisig bool `json:"multisig"`
	}
	if err := c.Call(ctx, "is_multisig", nil, &result); err != nil {
		return false, err
	}
	return result.Multisig, nil
}

// GetBalance issues get_balance.
func (c *Client) GetBalance(ctx context.Context) (BalanceResult, error) {
	var result BalanceResult
	err := c.Call(ctx, "get_balance", nil, &result)
	return result, err
}

// GetHeight issues get_height.
func (c *Client) GetHeight(ctx context.Context) (int64, error) {
	var result struct {
		Height int64 `json:"height"`
	}
	if err := c.Call(ctx, "get_height", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// Transfer issues a multisig transfer to destination for amountAtomic,
// returning the unsigned transaction blob that still needs co-signing.
func (c *Client) Transfer(ctx context.Context, destination string, amountAtomic int64) (string, error) {
	params := map[string]interface{}{
		"destinations": []map[string]interface{}{{"address": destination, "amount": amountAtomic}},
	}
	var result struct {
		TxDataHex string `json:"tx_data_hex"`
	}
	if err := c.Call(ctx, "transfer", params, &result); err != nil {
		return "", err
	}
	return result.TxDataHex, nil
}

// SignMultisig co-signs a partially-signed multisig transaction blob.
func (c *Client) SignMultisig(ctx context.Context, txDataHex string) (string, []string, error) {
	params := map[string]interface{}{"tx_data_hex": txDataHex}
	var result struct {
		TxDataHex  string   `json:"tx_data_hex"`
		TxHashList []string `json:"tx_hash_list"`
	}
	if err := c.Call(ctx, "sign_multisig", params, &result); err != nil {
		return "", nil, err
	}
	return result.TxDataHex, result.TxHashList, nil
}

// SubmitMultisig broadcasts a fully-signed multisig transaction.
func (c *Client) SubmitMultisig(ctx context.Context, txDataHex string) ([]string, error) {
	params := map[string]interface{}{"tx_data_hex": txDataHex}
	var result struct {
		TxHashList []string `json:"tx_hash_list"`
	}
	if err := c.Call(ctx, "submit_multisig", params, &result); err != nil {
		return nil, err
	}
	return result.TxHashList, nil
}

// OpenWallet issues open_wallet.
func (c *Client) OpenWallet(ctx context.Context, name, passphrase string) error {
	params := map[string]interface{}{"filename": name, "password": passphrase}
	return c.Call(ctx, "open_wallet", params, nil)
}

// CloseWallet issues close_wallet.
func (c *Client) CloseWallet(ctx context.Context) error {
	return c.Call(ctx, "close_wallet", nil, nil)
}

// GetTransferByTxID issues get_transfer_by_txid.
func (c *Client) GetTransferByTxID(ctx context.Context, txid string) (TransferInfo, error) {
	params := map[string]interface{}{"txid": txid}
	var result struct {
		Transfer TransferInfo `json:"transfer"`
	}
	err := c.Call(ctx, "get_transfer_by_txid", params, &result)
	return result.Transfer, err
}
